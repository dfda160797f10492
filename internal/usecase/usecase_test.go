package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"
	"tourguide/internal/ports"
	"tourguide/internal/resolver"
	"tourguide/internal/store"
	"tourguide/internal/watcher"
	"tourguide/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pageHTML = `<html><body>
<div class="edit-post-header">
  <button id="save-post" class="editor-post-save-draft">Save draft</button>
  <button class="editor-post-publish-button" aria-label="Publish">Publish</button>
</div>
<iframe name="editor-canvas"></iframe>
</body></html>`

const canvasPageHTML = `<html><body><div class="is-root-container">
<p data-block="b1" class="block-editor-rich-text__editable">Hello</p>
</div></body></html>`

type fakeBrowser struct {
	mu          sync.Mutex
	win         *dom.Window
	data        *store.Memory
	ready       bool
	snapshots   int
	highlighted []*dom.Element
}

var _ ports.Browser = (*fakeBrowser)(nil)

func newFakeBrowser(withCanvas bool) *fakeBrowser {
	win := dom.NewWindow(dom.MustParse(pageHTML))
	if withCanvas {
		win.SetFrame("editor-canvas", dom.MustParse(canvasPageHTML))
	}

	return &fakeBrowser{win: win, data: store.NewMemory(), ready: true}
}

func (b *fakeBrowser) Launch(context.Context) error           { return nil }
func (b *fakeBrowser) Close(context.Context) error            { return nil }
func (b *fakeBrowser) Navigate(context.Context, string) error { return nil }
func (b *fakeBrowser) Window() *dom.Window                    { return b.win }
func (b *fakeBrowser) Store() ports.DataStore                 { return b.data }
func (b *fakeBrowser) IsReady() bool                          { return b.ready }

func (b *fakeBrowser) Snapshot(ctx context.Context) (*dom.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.snapshots++
	b.mu.Unlock()

	return b.win, nil
}

func (b *fakeBrowser) Highlight(_ context.Context, el *dom.Element) error {
	b.mu.Lock()
	b.highlighted = append(b.highlighted, el)
	b.mu.Unlock()

	return nil
}

func newServices(b *fakeBrowser) (*AuthoringService, *PlaybackService) {
	tour := config.DefaultTourConfig()
	tour.ClickGracePeriod = 10 * time.Millisecond
	tour.PollInterval = 5 * time.Millisecond
	tour.RecoverySettleDelay = time.Millisecond

	cfg := &config.Config{TourConfig: tour}
	logger := zap.NewNop()

	res := resolver.NewResolver(resolver.Params{Logger: logger, Config: cfg})
	w := watcher.NewWatcher(watcher.Params{Logger: logger, Config: cfg, Store: b.data})
	capturer := locator.NewCapturer(locator.Params{Logger: logger})

	authoring := NewAuthoringService(AuthoringServiceParams{
		Config:   cfg,
		Logger:   logger,
		Browser:  b,
		Capturer: capturer,
		Resolver: res,
	})

	playback := NewPlaybackService(PlaybackServiceParams{
		Config:   cfg,
		Logger:   logger,
		Browser:  b,
		Resolver: res,
		Watcher:  w,
	})

	return authoring, playback
}

func TestAuthoring_CaptureThenTest(t *testing.T) {
	b := newFakeBrowser(true)
	authoring, _ := newServices(b)
	ctx := context.Background()

	captured, err := authoring.Capture(ctx, "#save-post", false)
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	if len(captured.Target.Locators) == 0 {
		t.Fatal("expected locators")
	}

	if captured.ElementContext.TagName != "button" || captured.ElementContext.ID != "save-post" {
		t.Errorf("element context = %+v", captured.ElementContext)
	}

	report, err := authoring.TestTarget(ctx, captured.Target)
	if err != nil {
		t.Fatalf("TestTarget() error: %v", err)
	}

	if !report.Success || report.ElementInfo == nil || report.ElementInfo.ID != "save-post" {
		t.Errorf("report = %+v", report)
	}
}

func TestAuthoring_CaptureInCanvas(t *testing.T) {
	b := newFakeBrowser(true)
	authoring, _ := newServices(b)

	captured, err := authoring.Capture(context.Background(), `[data-block="b1"]`, true)
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	if !captured.Target.Constraints.SearchInEditorFrame {
		t.Error("canvas capture must search the editor frame")
	}
}

func TestAuthoring_CaptureErrors(t *testing.T) {
	tests := []struct {
		name      string
		selector  string
		inFrame   bool
		canvas    bool
		notReady  bool
		wantCode  string
		wantCause error
	}{
		{name: "empty selector", selector: "", wantCode: apperr.CodeInvalidArgument},
		{name: "invalid selector", selector: "[[", wantCode: apperr.CodeInvalidArgument},
		{name: "no match", selector: "#missing", wantCode: apperr.CodeNotFound},
		{name: "canvas absent", selector: "p", inFrame: true, wantCode: apperr.CodeUnavailable, wantCause: resolver.ErrIframeUnavailable},
		{name: "browser not ready", selector: "#save-post", notReady: true, wantCode: apperr.CodeBrowserNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBrowser(tt.canvas)
			b.ready = !tt.notReady
			authoring, _ := newServices(b)

			_, err := authoring.Capture(context.Background(), tt.selector, tt.inFrame)
			if err == nil {
				t.Fatal("expected error")
			}

			if got := apperr.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}

			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("error %v does not wrap %v", err, tt.wantCause)
			}
		})
	}
}

func cssTarget(sel string) entity.Target {
	return entity.Target{Locators: []entity.Locator{{Kind: entity.LocatorCSS, Value: sel, Weight: 90}}}
}

func TestPlay_StepsInOrder(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)
	doc := b.win.Main()

	manual := entity.Step{
		ID:         uuid.New(),
		Title:      "Save your draft",
		Target:     cssTarget("#save-post"),
		Completion: entity.Completion{Type: entity.CompletionManual},
		Order:      1,
	}
	custom := entity.Step{
		ID:    uuid.New(),
		Title: "Wait for the editor",
		Completion: entity.Completion{
			Type:      entity.CompletionCustomEvent,
			Params:    map[string]any{"eventName": "tour:ready"},
			TimeoutMs: 2000,
		},
		Order: 2,
	}
	tour := &entity.Tour{ID: uuid.New(), Steps: []entity.Step{custom, manual}}

	var started []uuid.UUID
	var targets []*entity.ElementInfo
	hooks := entity.PlaybackHooks{
		OnStepStart: func(st entity.Step, _, _ int) { started = append(started, st.ID) },
		OnAwaiting: func(st entity.Step, info *entity.ElementInfo) {
			targets = append(targets, info)
			if st.Completion.Type == entity.CompletionManual {
				if !playback.Confirm() {
					t.Error("Confirm() = false for a manual step")
				}

				return
			}

			doc.Dispatch(nil, &dom.Event{Type: "tour:ready"})
		},
	}

	report, err := playback.Play(context.Background(), tour, hooks)
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if len(report.Completed) != 2 || report.Completed[0] != manual.ID || report.Completed[1] != custom.ID {
		t.Errorf("completed = %v, want manual then custom", report.Completed)
	}

	if len(started) != 2 || started[0] != manual.ID {
		t.Errorf("started = %v", started)
	}

	if len(b.highlighted) != 1 || b.highlighted[0].ID() != "save-post" {
		t.Errorf("highlighted = %v", b.highlighted)
	}

	if targets[0] == nil || targets[0].ID != "save-post" || targets[1] != nil {
		t.Errorf("awaiting targets = %+v", targets)
	}

	if doc.ListenerCount() != 0 {
		t.Errorf("listeners left behind: %d", doc.ListenerCount())
	}
}

func TestPlay_MissingTargetRetryThenSkip(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)
	doc := b.win.Main()

	retried := entity.Step{
		ID:         uuid.New(),
		Target:     cssTarget("#late-button"),
		Completion: entity.Completion{Type: entity.CompletionManual},
		Order:      1,
	}
	skipped := entity.Step{
		ID:         uuid.New(),
		Target:     cssTarget("#never"),
		Completion: entity.Completion{Type: entity.CompletionManual},
		Order:      2,
	}
	tour := &entity.Tour{ID: uuid.New(), Steps: []entity.Step{retried, skipped}}

	var failures []entity.StepFailure
	hooks := entity.PlaybackHooks{
		OnAwaiting: func(entity.Step, *entity.ElementInfo) { playback.Confirm() },
		OnStepFailed: func(st entity.Step, f entity.StepFailure) entity.StepDecision {
			failures = append(failures, f)
			if st.ID != retried.ID {
				return entity.DecisionSkip
			}

			if _, err := doc.Body().AppendHTML(`<button id="late-button">Later</button>`); err != nil {
				t.Fatalf("AppendHTML() error: %v", err)
			}

			return entity.DecisionRetry
		},
	}

	before := b.snapshots

	report, err := playback.Play(context.Background(), tour, hooks)
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if len(report.Completed) != 1 || report.Completed[0] != retried.ID {
		t.Errorf("completed = %v", report.Completed)
	}

	if len(report.Skipped) != 1 || report.Skipped[0] != skipped.ID {
		t.Errorf("skipped = %v", report.Skipped)
	}

	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(failures))
	}

	if failures[0].Kind != string(resolver.FailureNoMatch) || !failures[0].RecoveryAttempted {
		t.Errorf("first failure = %+v", failures[0])
	}

	// one snapshot per attempt plus one per recovery
	if got := b.snapshots - before; got != 5 {
		t.Errorf("snapshots = %d, want 5", got)
	}
}

func TestPlay_CompletionTimeoutStops(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)

	st := entity.Step{
		ID: uuid.New(),
		Completion: entity.Completion{
			Type:      entity.CompletionCustomEvent,
			Params:    map[string]any{"eventName": "never"},
			TimeoutMs: 30,
		},
	}

	var got entity.StepFailure
	hooks := entity.PlaybackHooks{
		OnStepFailed: func(_ entity.Step, f entity.StepFailure) entity.StepDecision {
			got = f

			return entity.DecisionStop
		},
	}

	report, err := playback.Play(context.Background(), &entity.Tour{ID: uuid.New(), Steps: []entity.Step{st}}, hooks)
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if !report.Stopped || len(report.Completed) != 0 {
		t.Errorf("report = %+v", report)
	}

	if !got.TimedOut {
		t.Errorf("failure = %+v, want timed out", got)
	}
}

func TestPlay_StopReleasesWatcher(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)
	doc := b.win.Main()

	first := entity.Step{
		ID:         uuid.New(),
		Target:     cssTarget("#save-post"),
		Completion: entity.Completion{Type: entity.CompletionClickTarget},
		Order:      1,
	}
	second := entity.Step{ID: uuid.New(), Completion: entity.Completion{Type: entity.CompletionManual}, Order: 2}

	hooks := entity.PlaybackHooks{
		OnAwaiting: func(entity.Step, *entity.ElementInfo) {
			if doc.ListenerCount() == 0 {
				t.Error("click watcher should be listening")
			}

			playback.Stop()
		},
	}

	report, err := playback.Play(context.Background(), &entity.Tour{ID: uuid.New(), Steps: []entity.Step{first, second}}, hooks)
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if !report.Stopped || len(report.Completed) != 0 {
		t.Errorf("report = %+v", report)
	}

	if doc.ListenerCount() != 0 {
		t.Errorf("listeners left behind: %d", doc.ListenerCount())
	}

	if playback.Confirm() {
		t.Error("Confirm() after stop should report false")
	}

	// a stopped service plays again
	again, err := playback.Play(context.Background(), &entity.Tour{ID: uuid.New(), Steps: []entity.Step{second}},
		entity.PlaybackHooks{OnAwaiting: func(entity.Step, *entity.ElementInfo) { playback.Confirm() }})
	if err != nil || len(again.Completed) != 1 {
		t.Errorf("replay = %+v, %v", again, err)
	}
}

func TestPlay_ContextCancelled(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)

	ctx, cancel := context.WithCancel(context.Background())

	st := entity.Step{ID: uuid.New(), Completion: entity.Completion{Type: entity.CompletionManual}}
	hooks := entity.PlaybackHooks{OnAwaiting: func(entity.Step, *entity.ElementInfo) { cancel() }}

	report, err := playback.Play(ctx, &entity.Tour{ID: uuid.New(), Steps: []entity.Step{st}}, hooks)
	if apperr.CodeOf(err) != apperr.CodeCancelledByUser {
		t.Fatalf("Play() error = %v, want %s", err, apperr.CodeCancelledByUser)
	}

	if report == nil || !report.Stopped {
		t.Errorf("report = %+v", report)
	}
}

func TestPlay_InvalidTour(t *testing.T) {
	b := newFakeBrowser(true)
	_, playback := newServices(b)

	_, err := playback.Play(context.Background(), &entity.Tour{ID: uuid.New()}, entity.PlaybackHooks{})
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("code = %q, want %q", apperr.CodeOf(err), apperr.CodeInvalidArgument)
	}
}
