package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tourguide/internal/dom"
	"tourguide/pkg/logg"

	"go.uber.org/zap"
)

const mirrorName = "BrowserMirror"

// Delta kinds reported by the init script.
const (
	DeltaAttributes = "attributes"
	DeltaChildren   = "children"
	DeltaEvent      = "event"
)

var (
	ErrUnknownFrame = errors.New("frame is not mirrored")
	ErrStalePath    = errors.New("path does not address an element")
)

// Delta is one change observed in a live frame. Path is the element-child index path from the
// frame's document element. Frame is empty for the top-level document.
type Delta struct {
	Frame   string  `json:"frame"`
	Kind    string  `json:"kind"`
	Path    []int   `json:"path"`
	Name    string  `json:"name,omitempty"`
	Value   *string `json:"value,omitempty"`
	HTML    string  `json:"html,omitempty"`
	Event   string  `json:"event,omitempty"`
	Target  string  `json:"target,omitempty"`
	Checked *bool   `json:"checked,omitempty"`
	Detail  any     `json:"detail,omitempty"`
}

// DecodeDelta converts a binding payload into a Delta.
func DecodeDelta(raw any) (Delta, error) {
	var d Delta

	b, err := json.Marshal(raw)
	if err != nil {
		return d, fmt.Errorf("encode delta: %w", err)
	}

	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decode delta: %w", err)
	}

	return d, nil
}

// Mirror holds the dom.Window copy of the live page. Documents are patched in place on reload
// so listeners and element handles taken from them stay attached.
type Mirror struct {
	logger *zap.Logger

	mu  sync.Mutex
	win *dom.Window
}

func NewMirror(logger *zap.Logger) *Mirror {
	return &Mirror{
		logger: logger.With(zap.String(logg.Layer, mirrorName)),
	}
}

// Window returns the mirrored window, or nil before the first Load of the top frame.
func (m *Mirror) Window() *dom.Window {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.win
}

// Load replaces the frame's document with the serialized src.
func (m *Mirror) Load(frame, src string) error {
	fresh, err := dom.ParseString(src)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win == nil {
		if frame != "" {
			return fmt.Errorf("load frame %q: %w", frame, ErrUnknownFrame)
		}

		m.win = dom.NewWindow(fresh)

		return nil
	}

	current := m.docLocked(frame)
	if current == nil {
		if frame == "" {
			m.win.SetMain(fresh)
		} else {
			m.win.SetFrame(frame, fresh)
		}

		return nil
	}

	return patchDocument(current, fresh)
}

// Drop detaches a frame document, e.g. when the live iframe is gone.
func (m *Mirror) Drop(frame string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.win != nil && frame != "" {
		m.win.SetFrame(frame, nil)
	}
}

// Apply writes d into the mirror. Attribute changes to the mirror's own stamps are ignored.
func (m *Mirror) Apply(d Delta) error {
	m.mu.Lock()
	doc := m.docLocked(d.Frame)
	m.mu.Unlock()

	if doc == nil {
		return fmt.Errorf("frame %q: %w", d.Frame, ErrUnknownFrame)
	}

	switch d.Kind {
	case DeltaAttributes:
		if dom.IsInternalAttribute(d.Name) {
			return nil
		}

		el := doc.ElementAt(d.Path)
		if el == nil {
			return fmt.Errorf("attribute %q at %v: %w", d.Name, d.Path, ErrStalePath)
		}

		if d.Value == nil {
			el.RemoveAttribute(d.Name)
		} else {
			el.SetAttribute(d.Name, *d.Value)
		}

	case DeltaChildren:
		el := doc.ElementAt(d.Path)
		if el == nil {
			return fmt.Errorf("children at %v: %w", d.Path, ErrStalePath)
		}

		return el.PatchInnerHTML(d.HTML)

	case DeltaEvent:
		return m.dispatch(doc, d)

	default:
		return fmt.Errorf("unknown delta kind %q", d.Kind)
	}

	return nil
}

func (m *Mirror) dispatch(doc *dom.Document, d Delta) error {
	if d.Event == "" {
		return errors.New("event delta without event type")
	}

	var target *dom.Element
	if d.Target == "" {
		target = doc.ElementAt(d.Path)
		if target == nil {
			return fmt.Errorf("event %q at %v: %w", d.Event, d.Path, ErrStalePath)
		}

		if d.Value != nil {
			target.SetValue(*d.Value)
		}

		if d.Checked != nil {
			target.SetChecked(*d.Checked)
		}
	}

	doc.Dispatch(target, &dom.Event{Type: d.Event, Detail: d.Detail})

	return nil
}

func (m *Mirror) docLocked(frame string) *dom.Document {
	if m.win == nil {
		return nil
	}

	if frame == "" {
		return m.win.Main()
	}

	return m.win.Frame(frame)
}

func patchDocument(current, fresh *dom.Document) error {
	root := current.DocumentElement()
	next := fresh.DocumentElement()
	if root == nil || next == nil {
		return errors.New("document without root element")
	}

	for _, a := range root.Attributes() {
		if _, ok := next.Attr(a.Key); !ok {
			root.RemoveAttribute(a.Key)
		}
	}

	for _, a := range next.Attributes() {
		root.SetAttribute(a.Key, a.Val)
	}

	current.ResetFormState()

	return root.PatchInnerHTML(next.InnerHTML())
}
