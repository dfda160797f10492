// Package watcher waits for a step's completion condition during playback.
package watcher

import (
	"context"
	"fmt"
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
	watcherName   = "CompletionWatcher"
	watcherTracer = "watcher.completion"
)

type Watcher struct {
	logger *zap.Logger
	tracer trace.Tracer
	tour   *config.TourConfig
	store  ports.DataStore
}

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config  `optional:"true"`
	Store  ports.DataStore `optional:"true"`
}

func NewWatcher(params Params) *Watcher {
	return &Watcher{
		logger: params.Logger.With(zap.String(logg.Layer, watcherName)),
		tracer: otel.Tracer(watcherTracer),
		tour:   params.Config.Tour(),
		store:  params.Store,
	}
}

// watch is the state one completion type works with.
type watch struct {
	ctx    context.Context
	w      *Watcher
	h      *Handle
	win    *dom.Window
	sess   *session.Session
	c      entity.Completion
	el     *dom.Element
	logger *zap.Logger
}

type starter func(wt *watch) error

var starters = map[entity.CompletionType]starter{
	entity.CompletionClickTarget:      startClickTarget,
	entity.CompletionDOMValueChanged:  startValueChanged,
	entity.CompletionWPData:           startWPData,
	entity.CompletionManual:           startManual,
	entity.CompletionElementAppear:    startElementAppear,
	entity.CompletionElementDisappear: startElementDisappear,
	entity.CompletionCustomEvent:      startCustomEvent,
}

// Watch starts checking c. el is the step's resolved element and may be nil for types that do
// not need one. Configuration errors settle the handle at once with Error set. Ending ctx
// cancels the watch.
func (w *Watcher) Watch(ctx context.Context, win *dom.Window, sess *session.Session, c entity.Completion, el *dom.Element) *Handle {
	const op = "Watch"

	h := newHandle()
	logger := w.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.WatcherID, h.ID().String()),
		zap.String(logg.Completion, string(c.Type)),
		zap.String(logg.SessionID, sess.ID().String()),
	)

	ctx, step := tracing.StartSpan(ctx, w.tracer, logger, op,
		attribute.String(logg.Completion, string(c.Type)),
		attribute.Int("timeout_ms", c.TimeoutMs))

	started := time.Now()
	h.onSettle = func(res entity.CompletionResult, cancelled bool) {
		elapsed := zap.Duration("elapsed", time.Since(started))

		switch {
		case cancelled:
			logger.Debug("Watch cancelled", elapsed)
			step.EndResult(false, ErrCancelled.Error())
		case res.TimedOut:
			logger.Info("Watch timed out", elapsed)
			step.EndResult(false, "timed out")
		case res.Error != "":
			logger.Warn("Watch failed", elapsed, zap.String("reason", res.Error))
			step.EndResult(false, res.Error)
		default:
			logger.Debug("Watch completed", elapsed, zap.String("event", res.Event))
			step.EndResult(true, "")
		}
	}

	start, ok := starters[c.Type]
	if !ok {
		h.complete(entity.CompletionResult{Error: fmt.Sprintf("unknown completion type %q", c.Type)})

		return h
	}

	// the context only outlives the handle until it settles
	stopCtx := context.AfterFunc(ctx, h.Cancel)
	h.addCleanup(func() { stopCtx() })

	wt := &watch{ctx: ctx, w: w, h: h, win: win, sess: sess, c: c, el: el, logger: logger}

	if c.Type != entity.CompletionManual && c.TimeoutMs > 0 {
		timeout := After(time.Duration(c.TimeoutMs)*time.Millisecond, func() {
			h.complete(entity.CompletionResult{Success: false, TimedOut: true})
		})
		h.addCleanup(timeout.Stop)
	}

	if err := start(wt); err != nil {
		h.complete(entity.CompletionResult{Error: err.Error()})
	}

	return h
}

func (wt *watch) poll(check func()) {
	t := Every(wt.w.tour.PollInterval, check)
	wt.h.addCleanup(t.Stop)
}

func (wt *watch) canvasDoc() *dom.Document {
	if wt.win == nil {
		return nil
	}

	return wt.win.Frame(wt.w.tour.CanvasFrameName)
}

func (wt *watch) mainDoc() *dom.Document {
	if wt.win == nil {
		return nil
	}

	return wt.win.Main()
}
