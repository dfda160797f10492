package watcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/session"
	"tourguide/internal/store"

	"go.uber.org/zap"
)

const (
	testGrace = 100 * time.Millisecond
	testPoll  = 10 * time.Millisecond
)

const mainHTML = `<html><body>
<div class="toolbar"><button id="publish"><span class="label">Publish</span></button></div>
<input id="title" value="Hello">
<input id="agree" type="checkbox">
<div id="panel" aria-expanded="false">Panel</div>
<div class="components-modal__frame">Modal</div>
<iframe name="editor-canvas"></iframe>
</body></html>`

const canvasHTML = `<html><body><div class="block-editor-block-list__layout">
<div data-block="b1" data-type="core/paragraph"><p>One</p></div>
</div></body></html>`

func newTestWatcher(data *store.Memory) *Watcher {
	tour := config.DefaultTourConfig()
	tour.ClickGracePeriod = testGrace
	tour.PollInterval = testPoll

	params := Params{Logger: zap.NewNop(), Config: &config.Config{TourConfig: tour}}
	if data != nil {
		params.Store = data
	}

	return NewWatcher(params)
}

func newWindow() *dom.Window {
	win := dom.NewWindow(dom.MustParse(mainHTML))
	win.SetFrame("editor-canvas", dom.MustParse(canvasHTML))

	return win
}

func waitResult(t *testing.T, h *Handle) entity.CompletionResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	return res
}

func assertPending(t *testing.T, h *Handle, d time.Duration) {
	t.Helper()

	select {
	case <-h.Done():
		res, _ := h.Result()
		t.Fatalf("watch settled early: %+v", res)
	case <-time.After(d):
	}
}

func TestClickTarget_GracePeriod(t *testing.T) {
	win := newWindow()
	main := win.Main()
	button := main.GetElementByID("publish")

	h := newTestWatcher(nil).Watch(context.Background(), win, nil,
		entity.Completion{Type: entity.CompletionClickTarget}, button)

	button.Click()
	assertPending(t, h, 10*time.Millisecond)

	time.Sleep(testGrace)

	main.QuerySelector(".toolbar").Click()
	assertPending(t, h, 10*time.Millisecond)

	main.QuerySelector(".label").Click()

	res := waitResult(t, h)
	if !res.Success || res.Event != "click" {
		t.Errorf("unexpected result %+v", res)
	}

	if n := main.ListenerCount(); n != 0 {
		t.Errorf("listeners left after completion: %d", n)
	}
}

func TestClickTarget_CanvasElementAlsoListensOnMain(t *testing.T) {
	win := newWindow()
	canvas := win.Frame("editor-canvas")

	h := newTestWatcher(nil).Watch(context.Background(), win, nil,
		entity.Completion{Type: entity.CompletionClickTarget}, canvas.QuerySelector("p"))

	if canvas.ListenerCount() != 1 || win.Main().ListenerCount() != 1 {
		t.Fatalf("expected a listener on both documents, got canvas=%d main=%d",
			canvas.ListenerCount(), win.Main().ListenerCount())
	}

	h.Cancel()

	if canvas.ListenerCount() != 0 || win.Main().ListenerCount() != 0 {
		t.Errorf("cancel left listeners behind")
	}
}

func TestWatch_RequiresElement(t *testing.T) {
	for _, typ := range []entity.CompletionType{entity.CompletionClickTarget, entity.CompletionDOMValueChanged} {
		h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil, entity.Completion{Type: typ}, nil)

		res := waitResult(t, h)
		if res.Success || !strings.Contains(res.Error, "resolved element") {
			t.Errorf("%s: unexpected result %+v", typ, res)
		}
	}
}

func TestDOMValueChanged(t *testing.T) {
	t.Run("any change", func(t *testing.T) {
		win := newWindow()
		input := win.Main().GetElementByID("title")

		h := newTestWatcher(nil).Watch(context.Background(), win, nil,
			entity.Completion{Type: entity.CompletionDOMValueChanged}, input)

		input.Dispatch(&dom.Event{Type: "input"})
		assertPending(t, h, 10*time.Millisecond)

		input.SetValue("Hello world")
		input.Dispatch(&dom.Event{Type: "input"})

		res := waitResult(t, h)
		if !res.Success || res.Detail != "Hello world" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("expected value", func(t *testing.T) {
		win := newWindow()
		input := win.Main().GetElementByID("title")

		h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
			Type:   entity.CompletionDOMValueChanged,
			Params: map[string]any{"expectedValue": "My post"},
		}, input)

		input.SetValue("My")
		input.Dispatch(&dom.Event{Type: "input"})
		assertPending(t, h, 10*time.Millisecond)

		input.SetValue("My post")
		input.Dispatch(&dom.Event{Type: "change"})

		if res := waitResult(t, h); !res.Success {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("checkbox reads checked state", func(t *testing.T) {
		win := newWindow()
		box := win.Main().GetElementByID("agree")

		h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
			Type:   entity.CompletionDOMValueChanged,
			Params: map[string]any{"expectedValue": true},
		}, box)

		box.SetChecked(true)
		box.Dispatch(&dom.Event{Type: "change"})

		if res := waitResult(t, h); !res.Success || res.Detail != "true" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("attribute via mutation", func(t *testing.T) {
		win := newWindow()
		panel := win.Main().GetElementByID("panel")

		h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
			Type:   entity.CompletionDOMValueChanged,
			Params: map[string]any{"attributeName": "aria-expanded"},
		}, panel)

		panel.SetAttribute("aria-expanded", "true")

		if res := waitResult(t, h); !res.Success || res.Detail != "true" {
			t.Errorf("unexpected result %+v", res)
		}

		if n := win.Main().ListenerCount(); n != 0 {
			t.Errorf("listeners left: %d", n)
		}
	})
}

func TestWPData_TruthyTimeout(t *testing.T) {
	mem := store.NewMemory()
	mem.Register("core/editor", "isSavingPost", func([]any) any { return false })

	start := time.Now()
	h := newTestWatcher(mem).Watch(context.Background(), newWindow(), nil, entity.Completion{
		Type:      entity.CompletionWPData,
		Params:    map[string]any{"storeName": "core/editor", "selector": "isSavingPost", "comparator": "truthy"},
		TimeoutMs: 100,
	}, nil)

	mem.Notify()

	res := waitResult(t, h)
	elapsed := time.Since(start)

	if res.Success || !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}

	if elapsed < 100*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("timed out after %v", elapsed)
	}

	if n := mem.SubscriberCount(); n != 0 {
		t.Errorf("subscription not released: %d", n)
	}
}

func TestWPData_Comparators(t *testing.T) {
	t.Run("equals after update", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Set(store.BlockEditorStore, "getBlockCount", 1)

		h := newTestWatcher(mem).Watch(context.Background(), newWindow(), nil, entity.Completion{
			Type:   entity.CompletionWPData,
			Params: map[string]any{"storeName": store.BlockEditorStore, "selector": "getBlockCount", "expectedValue": float64(3)},
		}, nil)

		assertPending(t, h, 10*time.Millisecond)
		mem.Set(store.BlockEditorStore, "getBlockCount", 3)

		if res := waitResult(t, h); !res.Success || res.Detail != 3 {
			t.Errorf("unexpected result %+v", res)
		}

		if mem.SubscriberCount() != 0 {
			t.Error("subscription not released")
		}
	})

	t.Run("satisfied immediately with args", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Register("core/edit-post", "isFeatureActive", func(args []any) any {
			return len(args) == 1 && args[0] == "fullscreenMode"
		})

		h := newTestWatcher(mem).Watch(context.Background(), newWindow(), nil, entity.Completion{
			Type: entity.CompletionWPData,
			Params: map[string]any{
				"storeName": "core/edit-post",
				"selector":  "isFeatureActive",
				"args":      []any{"fullscreenMode"},
			},
		}, nil)

		if res := waitResult(t, h); !res.Success {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("unknown selector is an error", func(t *testing.T) {
		h := newTestWatcher(store.NewMemory()).Watch(context.Background(), newWindow(), nil, entity.Completion{
			Type:   entity.CompletionWPData,
			Params: map[string]any{"storeName": "core/nope", "selector": "x"},
		}, nil)

		if res := waitResult(t, h); res.Success || res.TimedOut || !strings.Contains(res.Error, "unknown store") {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("missing store", func(t *testing.T) {
		h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil, entity.Completion{
			Type:   entity.CompletionWPData,
			Params: map[string]any{"storeName": "core/editor", "selector": "x"},
		}, nil)

		if res := waitResult(t, h); res.Error == "" {
			t.Errorf("unexpected result %+v", res)
		}
	})
}

func TestManual(t *testing.T) {
	h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil,
		entity.Completion{Type: entity.CompletionManual, TimeoutMs: 20}, nil)

	assertPending(t, h, 50*time.Millisecond)

	if !h.Confirm() {
		t.Fatal("Confirm() = false")
	}

	if res := waitResult(t, h); !res.Success || res.Event != "confirm" {
		t.Errorf("unexpected result %+v", res)
	}

	if h.Confirm() {
		t.Error("second Confirm() should report false")
	}
}

func TestElementAppear_OnlyNewIdentifiers(t *testing.T) {
	win := newWindow()
	sess := session.New()
	canvas := win.Frame("editor-canvas")
	layout := canvas.QuerySelector(".block-editor-block-list__layout")

	h := newTestWatcher(nil).Watch(context.Background(), win, sess, entity.Completion{
		Type:   entity.CompletionElementAppear,
		Params: map[string]any{"selector": "[data-block]"},
	}, nil)

	// re-rendering the existing block must not count
	if err := layout.SetInnerHTML(`<div data-block="b1" data-type="core/paragraph"><p>One!</p></div>`); err != nil {
		t.Fatal(err)
	}
	assertPending(t, h, 5*testPoll)

	if _, err := layout.AppendHTML(`<div data-block="b2" data-type="core/image"></div>`); err != nil {
		t.Fatal(err)
	}

	res := waitResult(t, h)
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}

	detail, _ := res.Detail.(map[string]any)
	if detail["blockClientId"] != "b2" {
		t.Errorf("detail = %v", res.Detail)
	}

	if got := sess.LastAppearedBlock(); got != "b2" {
		t.Errorf("LastAppearedBlock() = %q", got)
	}
}

func TestElementAppear_MovedElementsDoNotCount(t *testing.T) {
	win := newWindow()
	body := win.Main().QuerySelector("body")

	h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
		Type:   entity.CompletionElementAppear,
		Params: map[string]any{"selector": ".components-modal__frame"},
	}, nil)

	rendered := `<div class="notice">Saved</div>
<div class="toolbar"><button id="publish"><span class="label">Publish</span></button></div>
<input id="title" value="Hello">
<input id="agree" type="checkbox">
<div id="panel" aria-expanded="false">Panel</div>
<div class="components-modal__frame">Modal</div>
<iframe name="editor-canvas"></iframe>`

	// a sibling inserted above the modal shifts its path
	if err := body.PatchInnerHTML(rendered); err != nil {
		t.Fatal(err)
	}
	assertPending(t, h, 5*testPoll)

	// a full replacement changes every handle but not the number of modals
	if err := body.SetInnerHTML(rendered); err != nil {
		t.Fatal(err)
	}
	assertPending(t, h, 5*testPoll)

	if _, err := body.AppendHTML(`<div class="components-modal__frame">Second</div>`); err != nil {
		t.Fatal(err)
	}

	res := waitResult(t, h)
	if !res.Success || res.Event != "elementAppear" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestElementAppear_InvalidSelector(t *testing.T) {
	h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil, entity.Completion{
		Type:   entity.CompletionElementAppear,
		Params: map[string]any{"selector": "div[[["},
	}, nil)

	if res := waitResult(t, h); res.Success || !strings.Contains(res.Error, "invalid selector") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestElementDisappear(t *testing.T) {
	win := newWindow()

	h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
		Type:   entity.CompletionElementDisappear,
		Params: map[string]any{"selector": ".components-modal__frame"},
	}, nil)

	assertPending(t, h, 3*testPoll)
	win.Main().QuerySelector(".components-modal__frame").Remove()

	if res := waitResult(t, h); !res.Success || res.Event != "elementDisappear" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCustomEvent(t *testing.T) {
	t.Run("document", func(t *testing.T) {
		win := newWindow()

		h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
			Type:   entity.CompletionCustomEvent,
			Params: map[string]any{"eventName": "tour:saved"},
		}, nil)

		win.Main().Dispatch(nil, &dom.Event{Type: "tour:other"})
		assertPending(t, h, 10*time.Millisecond)

		win.Main().Dispatch(nil, &dom.Event{Type: "tour:saved", Detail: map[string]any{"postId": 7}})

		res := waitResult(t, h)
		detail, _ := res.Detail.(map[string]any)
		if !res.Success || res.Event != "tour:saved" || detail["postId"] != 7 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("selector in canvas", func(t *testing.T) {
		win := newWindow()
		block := win.Frame("editor-canvas").QuerySelector(`[data-block="b1"]`)

		h := newTestWatcher(nil).Watch(context.Background(), win, nil, entity.Completion{
			Type:   entity.CompletionCustomEvent,
			Params: map[string]any{"eventName": "blockready", "target": `[data-block="b1"]`},
		}, nil)

		block.QuerySelector("p").Dispatch(&dom.Event{Type: "blockready", Detail: "ok"})

		if res := waitResult(t, h); !res.Success || res.Detail != "ok" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("configuration errors", func(t *testing.T) {
		for _, params := range []map[string]any{
			{},
			{"eventName": "x", "target": "#missing"},
		} {
			h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil,
				entity.Completion{Type: entity.CompletionCustomEvent, Params: params}, nil)

			if res := waitResult(t, h); res.Error == "" {
				t.Errorf("%v: expected error, got %+v", params, res)
			}
		}
	})
}

func TestCancel_ReleasesEverythingAndNeverResolves(t *testing.T) {
	win := newWindow()
	main := win.Main()
	button := main.GetElementByID("publish")

	h := newTestWatcher(nil).Watch(context.Background(), win, nil,
		entity.Completion{Type: entity.CompletionClickTarget, TimeoutMs: 30}, button)

	h.Cancel()

	if n := main.ListenerCount(); n != 0 {
		t.Errorf("listeners left after cancel: %d", n)
	}

	time.Sleep(testGrace + 50*time.Millisecond)
	button.Click()

	if _, ok := h.Result(); ok {
		t.Error("cancelled watch produced a result")
	}

	if _, err := h.Wait(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Wait() error = %v, want ErrCancelled", err)
	}

	if h.Confirm() {
		t.Error("Confirm() on a cancelled handle")
	}
}

func TestWatch_ContextCancels(t *testing.T) {
	win := newWindow()
	ctx, cancel := context.WithCancel(context.Background())

	h := newTestWatcher(nil).Watch(ctx, win, nil, entity.Completion{
		Type:   entity.CompletionElementAppear,
		Params: map[string]any{"selector": ".never"},
	}, nil)

	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("context cancellation did not settle the handle")
	}

	if _, ok := h.Result(); ok {
		t.Error("expected no result after context cancellation")
	}
}

func TestWatch_UnknownType(t *testing.T) {
	h := newTestWatcher(nil).Watch(context.Background(), newWindow(), nil, entity.Completion{Type: "hover"}, nil)

	if res := waitResult(t, h); res.Success || !strings.Contains(res.Error, "unknown completion type") {
		t.Errorf("unexpected result %+v", res)
	}
}
