package usecase

import (
	"context"
	"errors"
	"fmt"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"
	"tourguide/internal/ports"
	"tourguide/internal/resolver"
	"tourguide/pkg/apperr"
	"tourguide/pkg/logg"
	"tourguide/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	authoringServiceName = "AuthoringService"
	authoringTracer      = "usecase.authoring"
)

// AuthoringService captures targets from the live editor and tests them without playing.
type AuthoringService struct {
	tour     *config.TourConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	browser  ports.Browser
	capturer *locator.Capturer
	resolver *resolver.Resolver
}

type AuthoringServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  ports.Browser
	Capturer *locator.Capturer
	Resolver *resolver.Resolver
}

func NewAuthoringService(params AuthoringServiceParams) *AuthoringService {
	return &AuthoringService{
		tour:     params.Config.Tour(),
		logger:   params.Logger.With(zap.String(logg.Layer, authoringServiceName)),
		tracer:   otel.Tracer(authoringTracer),
		browser:  params.Browser,
		capturer: params.Capturer,
		resolver: params.Resolver,
	}
}

// Capture stands in for the element picker: the element matching selector in the current page
// is the one the author picked.
func (s *AuthoringService) Capture(ctx context.Context, selector string, inEditorFrame bool) (resp *entity.CaptureResult, err error) {
	const op = "Capture"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("selector", selector),
		attribute.Bool("in_editor_frame", inEditorFrame))
	defer func() {
		step.End(err)
	}()

	if selector == "" {
		return nil, apperr.InvalidReqError(op, "selector", errors.New("selector cannot be empty"))
	}

	if !dom.ValidSelector(selector) {
		return nil, apperr.InvalidReqError(op, "selector", fmt.Errorf("invalid selector %q", selector))
	}

	if !s.browser.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	win, err := s.browser.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	doc := win.Main()
	if inEditorFrame {
		doc = win.Frame(s.tour.CanvasFrameName)
		if doc == nil {
			return nil, apperr.Wrap(op, apperr.CodeUnavailable, resolver.ErrIframeUnavailable, map[string]any{
				apperr.MetaReason: "canvas_unavailable",
				apperr.MetaStage:  apperr.StageCapture,
				apperr.MetaFrame:  s.tour.CanvasFrameName,
			})
		}
	}

	el := doc.QuerySelector(selector)
	if el == nil {
		return nil, apperr.Wrap(op, apperr.CodeNotFound, errors.New("no element matches the selector"), map[string]any{
			apperr.MetaReason:   "element_not_found",
			apperr.MetaStage:    apperr.StageCapture,
			apperr.MetaSelector: selector,
		})
	}

	target := s.capturer.Capture(ctx, el, locator.Options{InEditorFrame: inEditorFrame})
	elementContext := s.capturer.CaptureElementContext(el)

	step.AddEvent("target captured", attribute.Int("locators", len(target.Locators)))
	logger.Info("Captured target", zap.Int("locators", len(target.Locators)))

	return &entity.CaptureResult{
		Target:         target,
		ElementContext: elementContext,
	}, nil
}

// TestTarget resolves target against a fresh snapshot. Resolution failures are part of the
// report, not errors.
func (s *AuthoringService) TestTarget(ctx context.Context, target entity.Target) (resp *entity.TargetTestReport, err error) {
	const op = "TestTarget"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.Int("locators", len(target.Locators)))
	defer func() {
		step.End(err)
	}()

	if !s.browser.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	win, err := s.browser.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	report := s.resolver.TestTargetResolution(ctx, win, target)

	logger.Info("Target tested", zap.Bool("success", report.Success), zap.String("reason", report.Error))

	return &report, nil
}
