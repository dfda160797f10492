// Package resolver turns a captured target back into one live element.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/ports"
	"tourguide/internal/session"
	"tourguide/pkg/logg"
	"tourguide/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	resolverName   = "TargetResolver"
	resolverTracer = "resolver.target"

	ErrNoMatch = "No matching element found"

	scoreID        = 20
	scoreTestID    = 15
	scoreContainer = 10
	scoreSelected  = 100
	scoreVisible   = 5

	maxPreviewLength = 100
)

type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureNoMatch           FailureKind = "no_match"
	FailureIframeUnavailable FailureKind = "iframe_unavailable"
	FailureRecovery          FailureKind = "recovery_failed"
	FailureInvalidTarget     FailureKind = "invalid_target"
)

// Result is valid only for the documents it was computed against; callers re-resolve on each use.
type Result struct {
	Success     bool
	Element     *dom.Element
	UsedLocator *entity.Locator
	Error       string
	Kind        FailureKind

	RecoveryAttempted bool
	Recovered         bool
}

// RecoverFunc tries to bring the page into a state where the target exists.
type RecoverFunc func(ctx context.Context) error

type Resolver struct {
	logger *zap.Logger
	tracer trace.Tracer
	tour   *config.TourConfig
	blocks ports.BlockEditor
}

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config    `optional:"true"`
	Blocks ports.BlockEditor `optional:"true"`
}

func NewResolver(params Params) *Resolver {
	return &Resolver{
		logger: params.Logger.With(zap.String(logg.Layer, resolverName)),
		tracer: otel.Tracer(resolverTracer),
		tour:   params.Config.Tour(),
		blocks: params.Blocks,
	}
}

// Resolve searches the target's document for its locators in priority order: every
// non-fallback locator before any fallback one. The first locator with a non-empty narrowed
// candidate set decides the result.
func (r *Resolver) Resolve(ctx context.Context, win *dom.Window, sess *session.Session, target entity.Target) Result {
	const op = "Resolve"
	logger := r.logger.With(zap.String(logg.Operation, op), zap.String(logg.SessionID, sess.ID().String()))

	ctx, step := tracing.StartSpan(ctx, r.tracer, logger, op,
		attribute.Int("locators", len(target.Locators)),
		attribute.Bool("in_editor_frame", target.Constraints.SearchInEditorFrame))

	res := r.resolve(ctx, win, sess, target, logger)

	if res.Success {
		step.SetAttributes(attribute.String(logg.Locator, res.UsedLocator.Value))
	}
	step.EndResult(res.Success, res.Error)

	return res
}

func (r *Resolver) resolve(ctx context.Context, win *dom.Window, sess *session.Session, target entity.Target, logger *zap.Logger) Result {
	if len(target.Locators) == 0 {
		return failure(FailureInvalidTarget, "Target has no locators")
	}

	docLocator := DocumentFor(target.Constraints, r.tour.CanvasFrameName)

	doc, err := docLocator.Locate(win)
	if err != nil {
		kind := FailureNoMatch
		if errors.Is(err, ErrIframeUnavailable) {
			kind = FailureIframeUnavailable
		}

		logger.Info("Target document unavailable", zap.String(logg.Frame, docLocator.Name()), zap.Error(err))

		return failure(kind, err.Error())
	}

	s := &scope{ctx: ctx, r: r, win: win, doc: doc, sess: sess, logger: logger}

	for _, loc := range attemptOrder(target.Locators) {
		match, ok := matchers[loc.Kind]
		if !ok {
			logger.Debug("Unknown locator kind", zap.String("kind", string(loc.Kind)))
			continue
		}

		candidates := s.narrow(target.Constraints, match(s, loc.Value))
		if len(candidates) == 0 {
			logger.Debug("Locator matched nothing", zap.String(logg.Locator, loc.Value))
			continue
		}

		used := loc
		el := s.pick(used, target.Constraints, candidates)

		logger.Debug("Target resolved",
			zap.String(logg.Locator, used.Value),
			zap.String(logg.Frame, docLocator.Name()),
			zap.Int("candidates", len(candidates)))

		return Result{Success: true, Element: el, UsedLocator: &used}
	}

	logger.Info("Target not resolved", zap.Int("locators", len(target.Locators)))

	return failure(FailureNoMatch, ErrNoMatch)
}

// attemptOrder segregates non-fallback from fallback locators, keeping bundle order in each group.
func attemptOrder(locs []entity.Locator) []entity.Locator {
	out := make([]entity.Locator, 0, len(locs))

	for _, l := range locs {
		if !l.IsFallback {
			out = append(out, l)
		}
	}

	for _, l := range locs {
		if l.IsFallback {
			out = append(out, l)
		}
	}

	return out
}

// narrow applies visibility, then the selected-block scope, then the container constraint.
func (s *scope) narrow(c entity.Constraints, candidates []*dom.Element) []*dom.Element {
	if c.VisibleOnly() {
		candidates = filter(candidates, (*dom.Element).Visible)
	}

	if c.ScopeToSelectedBlock {
		candidates = filter(candidates, func(el *dom.Element) bool {
			inside, known := s.inSelectedBlock(el)

			return inside || !known
		})
	}

	if sel := strings.TrimSpace(c.WithinContainerSelector); sel != "" {
		candidates = filter(candidates, func(el *dom.Element) bool {
			return withinContainer(el, sel)
		})
	}

	return candidates
}

func filter(in []*dom.Element, keep func(*dom.Element) bool) []*dom.Element {
	var out []*dom.Element

	for _, el := range in {
		if keep(el) {
			out = append(out, el)
		}
	}

	return out
}

func withinContainer(el *dom.Element, sel string) bool {
	parent := el.Parent()

	return parent != nil && parent.Closest(sel) != nil
}

// pick disambiguates candidates. Equal scores keep the earliest candidate in query order.
func (s *scope) pick(loc entity.Locator, c entity.Constraints, candidates []*dom.Element) *dom.Element {
	if len(candidates) == 1 {
		return candidates[0]
	}

	if c.MatchIndex != nil && *c.MatchIndex >= 0 && *c.MatchIndex < len(candidates) {
		return candidates[*c.MatchIndex]
	}

	var (
		best      *dom.Element
		bestScore int
	)

	for _, el := range candidates {
		score := s.score(loc, c, el)
		if best == nil || score > bestScore {
			best, bestScore = el, score
		}
	}

	return best
}

func (s *scope) score(loc entity.Locator, c entity.Constraints, el *dom.Element) int {
	score := loc.Weight

	if el.ID() != "" {
		score += scoreID
	}

	if el.HasAttribute("data-testid") {
		score += scoreTestID
	}

	if sel := strings.TrimSpace(c.WithinContainerSelector); sel != "" && withinContainer(el, sel) {
		score += scoreContainer
	}

	if inside, _ := s.inSelectedBlock(el); inside {
		score += scoreSelected
	}

	if el.Visible() {
		score += scoreVisible
	}

	return score
}

// ResolveWithRecovery retries once after recover succeeds and the page has settled.
func (r *Resolver) ResolveWithRecovery(ctx context.Context, win *dom.Window, sess *session.Session, target entity.Target, recoverFn RecoverFunc) Result {
	const op = "ResolveWithRecovery"
	logger := r.logger.With(zap.String(logg.Operation, op), zap.String(logg.SessionID, sess.ID().String()))

	res := r.Resolve(ctx, win, sess, target)
	if res.Success || recoverFn == nil {
		return res
	}

	ctx, step := tracing.StartSpan(ctx, r.tracer, logger, op, attribute.String("first_failure", string(res.Kind)))

	logger.Info("Resolution failed, attempting recovery", zap.String("reason", res.Error))

	if err := recoverFn(ctx); err != nil {
		logger.Warn("Recovery callback failed", zap.Error(err))

		out := failure(FailureRecovery, fmt.Sprintf("Recovery failed: %v", err))
		out.RecoveryAttempted = true
		step.EndResult(false, out.Error)

		return out
	}

	select {
	case <-ctx.Done():
		out := failure(FailureRecovery, fmt.Sprintf("Recovery interrupted: %v", ctx.Err()))
		out.RecoveryAttempted = true
		step.EndResult(false, out.Error)

		return out
	case <-time.After(r.tour.RecoverySettleDelay):
	}

	step.AddEvent("retrying after recovery")

	res = r.Resolve(ctx, win, sess, target)
	res.RecoveryAttempted = true
	res.Recovered = res.Success

	step.EndResult(res.Success, res.Error)

	return res
}

// TestTargetResolution resolves target without session hints and reports what was found. It
// reads the documents only.
func (r *Resolver) TestTargetResolution(ctx context.Context, win *dom.Window, target entity.Target) entity.TargetTestReport {
	res := r.Resolve(ctx, win, session.New(), target)
	if !res.Success {
		return entity.TargetTestReport{Success: false, Error: res.Error}
	}

	info := DescribeElement(res.Element)

	return entity.TargetTestReport{
		Success:     true,
		UsedLocator: res.UsedLocator,
		ElementInfo: &info,
	}
}

// DescribeElement summarizes el for diagnostics.
func DescribeElement(el *dom.Element) entity.ElementInfo {
	info := entity.ElementInfo{
		TagName:   el.TagName(),
		ID:        el.ID(),
		ClassName: el.GetAttribute("class"),
	}

	text := []rune(strings.Join(strings.Fields(el.TextContent()), " "))
	if len(text) > maxPreviewLength {
		text = append(text[:maxPreviewLength], []rune("...")...)
	}
	info.TextContentPreview = string(text)

	if rect, ok := el.BoundingRect(); ok {
		info.BoundingRect = &rect
	}

	return info
}

func failure(kind FailureKind, reason string) Result {
	return Result{Success: false, Error: reason, Kind: kind}
}
