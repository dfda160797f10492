package browser

import (
	"errors"
	"testing"

	"tourguide/internal/dom"

	"go.uber.org/zap"
)

const mirrorMain = `<!DOCTYPE html><html><head></head><body>
<div class="toolbar"><button id="save" class="x">Save</button></div>
<label><input id="agree" type="checkbox"></label>
<input id="title" value="old">
<iframe name="editor-canvas"></iframe>
</body></html>`

const mirrorCanvas = `<!DOCTYPE html><html><head></head><body>
<div class="is-root-container"><p data-block="b1">One</p></div>
</body></html>`

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func loadedMirror(t *testing.T) *Mirror {
	t.Helper()

	m := NewMirror(zap.NewNop())
	if err := m.Load("", mirrorMain); err != nil {
		t.Fatalf("Load(main) error: %v", err)
	}

	if err := m.Load("editor-canvas", mirrorCanvas); err != nil {
		t.Fatalf("Load(canvas) error: %v", err)
	}

	return m
}

func TestMirror_LoadFrameBeforeMain(t *testing.T) {
	m := NewMirror(zap.NewNop())

	err := m.Load("editor-canvas", mirrorCanvas)
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("Load() error = %v, want ErrUnknownFrame", err)
	}

	if m.Window() != nil {
		t.Error("window should stay nil")
	}
}

func TestMirror_ReloadKeepsHandlesAndListeners(t *testing.T) {
	m := loadedMirror(t)
	win := m.Window()
	save := win.Main().GetElementByID("save")

	clicks := 0
	stop := win.Main().AddEventListener("click", true, func(*dom.Event) { clicks++ })
	defer stop()

	reloaded := `<!DOCTYPE html><html lang="en"><head></head><body>
<div class="toolbar"><button id="save" class="x is-busy">Saving</button></div>
</body></html>`
	if err := m.Load("", reloaded); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if m.Window() != win {
		t.Fatal("reload replaced the window")
	}

	if !save.IsConnected() || save.TextContent() != "Saving" {
		t.Errorf("save handle not patched: connected=%v text=%q", save.IsConnected(), save.TextContent())
	}

	if got := win.Main().DocumentElement().GetAttribute("lang"); got != "en" {
		t.Errorf("lang = %q, want en", got)
	}

	save.Click()
	if clicks != 1 {
		t.Errorf("clicks = %d, want 1 after reload", clicks)
	}
}

func TestMirror_ApplyAttributes(t *testing.T) {
	m := loadedMirror(t)
	save := m.Window().Main().GetElementByID("save")

	if err := m.Apply(Delta{Kind: DeltaAttributes, Path: save.Path(), Name: "aria-pressed", Value: strPtr("true")}); err != nil {
		t.Fatalf("Apply(set) error: %v", err)
	}

	if got := save.GetAttribute("aria-pressed"); got != "true" {
		t.Errorf("aria-pressed = %q, want true", got)
	}

	if err := m.Apply(Delta{Kind: DeltaAttributes, Path: save.Path(), Name: "class"}); err != nil {
		t.Fatalf("Apply(remove) error: %v", err)
	}

	if save.HasAttribute("class") {
		t.Error("class should be removed")
	}

	if err := m.Apply(Delta{Kind: DeltaAttributes, Path: save.Path(), Name: dom.AttrHidden, Value: strPtr("")}); err != nil {
		t.Fatalf("Apply(internal) error: %v", err)
	}

	if save.HasAttribute(dom.AttrHidden) {
		t.Error("mirror stamps must not be written by deltas")
	}

	err := m.Apply(Delta{Kind: DeltaAttributes, Path: []int{1, 40}, Name: "id", Value: strPtr("x")})
	if !errors.Is(err, ErrStalePath) {
		t.Errorf("Apply(stale) error = %v, want ErrStalePath", err)
	}
}

func TestMirror_ApplyChildrenInCanvas(t *testing.T) {
	m := loadedMirror(t)
	canvas := m.Window().Frame("editor-canvas")
	container := canvas.QuerySelector(".is-root-container")
	first := canvas.QuerySelector(`[data-block="b1"]`)

	observed := 0
	stop := canvas.Observe(container, func() { observed++ })
	defer stop()

	err := m.Apply(Delta{
		Frame: "editor-canvas",
		Kind:  DeltaChildren,
		Path:  container.Path(),
		HTML:  `<p data-block="b1">One</p><h2 data-block="b2">Two</h2>`,
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if !first.IsConnected() {
		t.Error("unchanged block lost its handle")
	}

	if canvas.QuerySelector(`[data-block="b2"]`) == nil {
		t.Error("inserted block missing")
	}

	if observed != 1 {
		t.Errorf("observer fired %d times, want 1", observed)
	}
}

func TestMirror_ApplyEvents(t *testing.T) {
	m := loadedMirror(t)
	doc := m.Window().Main()

	t.Run("input sets value before dispatch", func(t *testing.T) {
		title := doc.GetElementByID("title")

		var seen string
		stop := title.AddEventListener("input", false, func(ev *dom.Event) { seen = ev.Target.Value() })
		defer stop()

		if err := m.Apply(Delta{Kind: DeltaEvent, Event: "input", Path: title.Path(), Value: strPtr("new")}); err != nil {
			t.Fatalf("Apply() error: %v", err)
		}

		if seen != "new" {
			t.Errorf("listener saw %q, want new", seen)
		}
	})

	t.Run("change sets checked", func(t *testing.T) {
		agree := doc.GetElementByID("agree")

		if err := m.Apply(Delta{Kind: DeltaEvent, Event: "change", Path: agree.Path(), Checked: boolPtr(true)}); err != nil {
			t.Fatalf("Apply() error: %v", err)
		}

		if !agree.Checked() {
			t.Error("checkbox should be checked")
		}
	})

	t.Run("custom event on document", func(t *testing.T) {
		var detail any
		stop := doc.AddEventListener("tour:saved", false, func(ev *dom.Event) { detail = ev.Detail })
		defer stop()

		err := m.Apply(Delta{Kind: DeltaEvent, Event: "tour:saved", Target: "document", Detail: map[string]any{"id": "p1"}})
		if err != nil {
			t.Fatalf("Apply() error: %v", err)
		}

		got, ok := detail.(map[string]any)
		if !ok || got["id"] != "p1" {
			t.Errorf("detail = %#v", detail)
		}
	})

	t.Run("unknown frame", func(t *testing.T) {
		err := m.Apply(Delta{Frame: "preview", Kind: DeltaEvent, Event: "click"})
		if !errors.Is(err, ErrUnknownFrame) {
			t.Errorf("Apply() error = %v, want ErrUnknownFrame", err)
		}
	})
}

func TestMirror_Drop(t *testing.T) {
	m := loadedMirror(t)
	m.Drop("editor-canvas")

	if m.Window().Frame("editor-canvas") != nil {
		t.Error("canvas should be dropped")
	}

	m.Drop("")
	if m.Window().Main() == nil {
		t.Error("main document must never be dropped")
	}
}

func TestDecodeDelta(t *testing.T) {
	raw := map[string]any{
		"frame": "editor-canvas",
		"kind":  "attributes",
		"path":  []any{float64(1), float64(0)},
		"name":  "class",
		"value": nil,
	}

	d, err := DecodeDelta(raw)
	if err != nil {
		t.Fatalf("DecodeDelta() error: %v", err)
	}

	if d.Frame != "editor-canvas" || d.Kind != DeltaAttributes || len(d.Path) != 2 || d.Path[0] != 1 {
		t.Errorf("decoded = %+v", d)
	}

	if d.Value != nil {
		t.Error("null value should decode as removal")
	}
}

func TestPathSelector(t *testing.T) {
	tests := []struct {
		path []int
		want string
	}{
		{nil, ":root"},
		{[]int{1}, ":root > :nth-child(2)"},
		{[]int{1, 0, 3}, ":root > :nth-child(2) > :nth-child(1) > :nth-child(4)"},
	}

	for _, tt := range tests {
		if got := pathSelector(tt.path); got != tt.want {
			t.Errorf("pathSelector(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
