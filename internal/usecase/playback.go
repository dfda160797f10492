package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/ports"
	"tourguide/internal/resolver"
	"tourguide/internal/session"
	"tourguide/internal/watcher"
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
	playbackServiceName = "PlaybackService"
	playbackTracer      = "usecase.playback"
)

var ErrAlreadyPlaying = errors.New("a tour is already playing")

// PlaybackService walks a tour step by step: resolve, highlight, wait for completion.
type PlaybackService struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	browser  ports.Browser
	resolver *resolver.Resolver
	watcher  *watcher.Watcher

	mu      sync.Mutex
	playing bool
	stopped bool
	cancel  context.CancelFunc
	current *watcher.Handle
}

type PlaybackServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  ports.Browser
	Resolver *resolver.Resolver
	Watcher  *watcher.Watcher
}

func NewPlaybackService(params PlaybackServiceParams) *PlaybackService {
	return &PlaybackService{
		logger:   params.Logger.With(zap.String(logg.Layer, playbackServiceName)),
		tracer:   otel.Tracer(playbackTracer),
		browser:  params.Browser,
		resolver: params.Resolver,
		watcher:  params.Watcher,
	}
}

// Play runs tour's steps in order. Stop ends playback with a report marked Stopped and no
// error; a cancelled ctx returns its error alongside the partial report.
func (s *PlaybackService) Play(ctx context.Context, tour *entity.Tour, hooks entity.PlaybackHooks) (report *entity.PlaybackReport, err error) {
	const op = "Play"
	logger := s.logger.With(zap.String(logg.Operation, op))

	if tour == nil || len(tour.Steps) == 0 {
		return nil, apperr.InvalidReqError(op, "tour", errors.New("tour has no steps"))
	}

	logger = logger.With(zap.String(logg.TourID, tour.ID.String()))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String(logg.TourID, tour.ID.String()),
		attribute.Int("steps", len(tour.Steps)))
	defer func() {
		step.End(err)
	}()

	if !s.browser.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.begin(cancel); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "already_playing",
		})
	}
	defer s.end()

	sess := session.New()
	logger = logger.With(zap.String(logg.SessionID, sess.ID().String()))

	steps := make([]entity.Step, len(tour.Steps))
	copy(steps, tour.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	report = &entity.PlaybackReport{TourID: tour.ID}

	logger.Info("Playing tour", zap.Int("steps", len(steps)))

	for i, st := range steps {
		outcome, err := s.playStep(ctx, sess, st, i, len(steps), hooks)
		if err != nil {
			if s.stopRequested() {
				report.Stopped = true
				logger.Info("Playback stopped", zap.String(logg.StepID, st.ID.String()))

				return report, nil
			}

			if ctx.Err() != nil || errors.Is(err, watcher.ErrCancelled) {
				report.Stopped = true

				return report, apperr.Wrap(op, apperr.CodeCancelledByUser, err, map[string]any{
					apperr.MetaStepID: st.ID.String(),
				})
			}

			return report, err
		}

		switch outcome {
		case entity.DecisionStop:
			report.Stopped = true
			logger.Info("Playback stopped at failed step", zap.String(logg.StepID, st.ID.String()))

			return report, nil
		case entity.DecisionSkip:
			report.Skipped = append(report.Skipped, st.ID)
		default:
			report.Completed = append(report.Completed, st.ID)
		}
	}

	step.SetAttributes(
		attribute.Int("completed", len(report.Completed)),
		attribute.Int("skipped", len(report.Skipped)))
	logger.Info("Tour finished",
		zap.Int("completed", len(report.Completed)),
		zap.Int("skipped", len(report.Skipped)))

	return report, nil
}

// stepDone is playStep's outcome for a completed step.
const stepDone entity.StepDecision = ""

// playStep returns stepDone, DecisionSkip or DecisionStop. Retries happen inside.
func (s *PlaybackService) playStep(ctx context.Context, sess *session.Session, st entity.Step, index, total int, hooks entity.PlaybackHooks) (entity.StepDecision, error) {
	const op = "playStep"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.StepID, st.ID.String()))

	for {
		if hooks.OnStepStart != nil {
			hooks.OnStepStart(st, index, total)
		}

		win, err := s.browser.Snapshot(ctx)
		if err != nil {
			return "", err
		}

		var el *dom.Element
		if len(st.Target.Locators) > 0 {
			res := s.resolver.ResolveWithRecovery(ctx, win, sess, st.Target, s.refresh)

			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			if !res.Success {
				logger.Warn("Step target not found",
					zap.String("kind", string(res.Kind)),
					zap.String("reason", res.Error))

				decision := decide(hooks, st, entity.StepFailure{
					Reason:            res.Error,
					Kind:              string(res.Kind),
					RecoveryAttempted: res.RecoveryAttempted,
				})
				if decision == entity.DecisionRetry {
					continue
				}

				return decision, nil
			}

			el = res.Element

			if err := s.browser.Highlight(ctx, el); err != nil {
				logger.Warn("Highlight failed", zap.Error(err))
			}
		}

		res, err := s.await(ctx, win, sess, st, el, hooks)
		if err != nil {
			return "", err
		}

		if res.Success {
			if hooks.OnStepCompleted != nil {
				hooks.OnStepCompleted(st, res)
			}

			return stepDone, nil
		}

		reason := res.Error
		if res.TimedOut {
			reason = "completion timed out"
		}

		logger.Warn("Step not completed", zap.String("reason", reason))

		decision := decide(hooks, st, entity.StepFailure{Reason: reason, TimedOut: res.TimedOut})
		if decision == entity.DecisionRetry {
			continue
		}

		return decision, nil
	}
}

func (s *PlaybackService) await(ctx context.Context, win *dom.Window, sess *session.Session, st entity.Step, el *dom.Element, hooks entity.PlaybackHooks) (entity.CompletionResult, error) {
	h := s.watcher.Watch(ctx, win, sess, st.Completion, el)

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		h.Cancel()
	}()

	if hooks.OnAwaiting != nil {
		var info *entity.ElementInfo
		if el != nil {
			described := resolver.DescribeElement(el)
			info = &described
		}

		hooks.OnAwaiting(st, info)
	}

	return h.Wait(ctx)
}

func (s *PlaybackService) refresh(ctx context.Context) error {
	_, err := s.browser.Snapshot(ctx)

	return err
}

func decide(hooks entity.PlaybackHooks, st entity.Step, failure entity.StepFailure) entity.StepDecision {
	if hooks.OnStepFailed == nil {
		return entity.DecisionSkip
	}

	switch d := hooks.OnStepFailed(st, failure); d {
	case entity.DecisionRetry, entity.DecisionStop:
		return d
	default:
		return entity.DecisionSkip
	}
}

// Confirm completes the current step when it waits for a manual confirmation.
func (s *PlaybackService) Confirm() bool {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h == nil {
		return false
	}

	return h.Confirm()
}

// Stop ends playback. The active watcher releases its listeners before Stop returns.
func (s *PlaybackService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	h := s.current
	s.cancel = nil
	if s.playing {
		s.stopped = true
	}
	s.mu.Unlock()

	if h != nil {
		h.Cancel()
	}

	if cancel != nil {
		cancel()
	}
}

func (s *PlaybackService) begin(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing {
		return ErrAlreadyPlaying
	}

	s.playing = true
	s.stopped = false
	s.cancel = cancel

	return nil
}

func (s *PlaybackService) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}

func (s *PlaybackService) end() {
	s.mu.Lock()
	s.playing = false
	s.cancel = nil
	s.current = nil
	s.mu.Unlock()
}
