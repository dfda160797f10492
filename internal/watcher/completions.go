package watcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"

	"go.uber.org/zap"
)

const (
	blockAttr = "data-block"

	targetDocument = "document"
	targetWindow   = "window"
)

var errNoElement = errors.New("completion requires a resolved element")

// startClickTarget completes on a click inside el, ignoring clicks during the grace period.
func startClickTarget(wt *watch) error {
	if wt.el == nil {
		return fmt.Errorf("clickTarget: %w", errNoElement)
	}

	el := wt.el
	opened := time.Now()
	grace := wt.w.tour.ClickGracePeriod

	onClick := func(ev *dom.Event) {
		if time.Since(opened) < grace {
			wt.logger.Debug("Click ignored during grace period")
			return
		}

		if ev.Target == nil || !el.Contains(ev.Target) {
			return
		}

		wt.h.complete(entity.CompletionResult{Success: true, Event: "click"})
	}

	own := el.Document()
	wt.h.addCleanup(own.AddEventListener("click", true, onClick))

	if main := wt.mainDoc(); main != nil && main != own {
		wt.h.addCleanup(main.AddEventListener("click", true, onClick))
	}

	return nil
}

// startValueChanged completes when el's value differs from its value at watch start, or equals
// expectedValue when one is given.
func startValueChanged(wt *watch) error {
	if wt.el == nil {
		return fmt.Errorf("domValueChanged: %w", errNoElement)
	}

	el := wt.el
	read := valueReader(el, wt.c.StringParam("attributeName"))
	initial := read()

	raw, hasExpected := wt.c.Param("expectedValue")
	expected := stringify(raw)

	check := func() {
		cur := read()

		if hasExpected {
			if cur != expected {
				return
			}
		} else if cur == initial {
			return
		}

		wt.h.complete(entity.CompletionResult{Success: true, Event: "valueChanged", Detail: cur})
	}

	onEvent := func(*dom.Event) { check() }

	wt.h.addCleanup(el.AddEventListener("input", true, onEvent))
	wt.h.addCleanup(el.AddEventListener("change", true, onEvent))
	wt.h.addCleanup(el.Document().Observe(el, check))

	return nil
}

// valueReader picks how el's value is read: the named attribute, the checked state of a
// checkbox or radio, the form value, then text content.
func valueReader(el *dom.Element, attributeName string) func() string {
	switch {
	case attributeName != "":
		return func() string { return el.GetAttribute(attributeName) }
	case el.IsCheckable():
		return func() string { return strconv.FormatBool(el.Checked()) }
	case el.IsFormControl():
		return el.Value
	default:
		return el.TextContent
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}

	return fmt.Sprint(v)
}

// startWPData reads a store selector now and on every store update until the comparator holds.
func startWPData(wt *watch) error {
	data := wt.w.store
	if data == nil {
		return errors.New("wpData: no data store available")
	}

	storeName := wt.c.StringParam("storeName")
	selector := wt.c.StringParam("selector")
	if storeName == "" || selector == "" {
		return errors.New("wpData: storeName and selector are required")
	}

	expected, hasExpected := wt.c.Param("expectedValue")

	comparator := Comparator(wt.c.StringParam("comparator"))
	if comparator == "" {
		comparator = CompareTruthy
		if hasExpected {
			comparator = CompareEquals
		}
	}

	if _, ok := comparators[comparator]; !ok {
		return fmt.Errorf("wpData: unknown comparator %q", comparator)
	}

	args := selectorArgs(wt.c)

	evaluate := func() {
		value, err := data.Select(wt.ctx, storeName, selector, args)
		if err != nil {
			wt.h.complete(entity.CompletionResult{Error: fmt.Sprintf("wpData: %v", err)})
			return
		}

		if ok, _ := Compare(comparator, value, expected); ok {
			wt.h.complete(entity.CompletionResult{Success: true, Event: "wpData", Detail: value})
		}
	}

	wt.h.addCleanup(data.Subscribe(evaluate))
	evaluate()

	return nil
}

func selectorArgs(c entity.Completion) []any {
	raw, ok := c.Param("args")
	if !ok || raw == nil {
		return nil
	}

	if list, ok := raw.([]any); ok {
		return list
	}

	return []any{raw}
}

func startManual(wt *watch) error {
	h := wt.h

	h.mu.Lock()
	h.confirm = func() {
		h.complete(entity.CompletionResult{Success: true, Event: "confirm"})
	}
	h.mu.Unlock()

	return nil
}

// startElementAppear completes when an element matching selector appears under an identifier
// that was absent at watch start, in either document. A new block becomes the session's last
// appeared block.
func startElementAppear(wt *watch) error {
	sel := strings.TrimSpace(wt.c.StringParam("selector"))
	if sel == "" || !dom.ValidSelector(sel) {
		return fmt.Errorf("elementAppear: invalid selector %q", sel)
	}

	baseline := newAppearSet(wt.appearMatches(sel))

	wt.logger.Debug("Element appear baseline", zap.String("selector", sel), zap.Int("present", baseline.size()))

	wt.poll(func() {
		matches := wt.appearMatches(sel)
		counts := newAppearSet(matches).unkeyed

		for _, m := range matches {
			if !baseline.isNew(m, counts) {
				continue
			}

			detail := map[string]any{"identifier": m.identifier()}
			if m.block != "" {
				wt.sess.SetLastAppearedBlock(m.block)
				detail["blockClientId"] = m.block
			}

			wt.h.complete(entity.CompletionResult{Success: true, Event: "elementAppear", Detail: detail})

			return
		}
	})

	return nil
}

// appearMatch is keyed by its enclosing block or its id. Matches with neither carry no key
// and are tracked by handle and by their count per document.
type appearMatch struct {
	doc   string
	key   string
	block string
	el    *dom.Element
}

func (m appearMatch) identifier() string {
	if m.key != "" {
		return m.key
	}

	return "path:" + m.doc + ":" + pathKey(m.el.Path())
}

type appearSet struct {
	keys     map[string]bool
	elements map[*dom.Element]bool
	unkeyed  map[string]int
}

func newAppearSet(matches []appearMatch) *appearSet {
	s := &appearSet{
		keys:     make(map[string]bool),
		elements: make(map[*dom.Element]bool),
		unkeyed:  make(map[string]int),
	}

	for _, m := range matches {
		if m.key != "" {
			s.keys[m.key] = true
			continue
		}

		s.elements[m.el] = true
		s.unkeyed[m.doc]++
	}

	return s
}

func (s *appearSet) size() int {
	return len(s.keys) + len(s.elements)
}

// isNew reports whether m was absent at watch start. An unkeyed match counts only when its
// document now holds more unkeyed matches than before, so moved or re-parsed elements do not.
func (s *appearSet) isNew(m appearMatch, counts map[string]int) bool {
	if m.key != "" {
		return !s.keys[m.key]
	}

	return !s.elements[m.el] && counts[m.doc] > s.unkeyed[m.doc]
}

// appearMatches lists the matches of sel in the main and canvas documents.
func (wt *watch) appearMatches(sel string) []appearMatch {
	var out []appearMatch

	docs := []struct {
		name string
		doc  *dom.Document
	}{{"main", wt.mainDoc()}, {"canvas", wt.canvasDoc()}}

	for _, d := range docs {
		if d.doc == nil {
			continue
		}

		for _, el := range d.doc.QuerySelectorAll(sel) {
			if wrapper := el.Closest("[" + blockAttr + "]"); wrapper != nil {
				if id := wrapper.GetAttribute(blockAttr); id != "" {
					out = append(out, appearMatch{doc: d.name, key: "block:" + id, block: id, el: el})
					continue
				}
			}

			if id := el.ID(); id != "" {
				out = append(out, appearMatch{doc: d.name, key: "id:" + d.name + ":" + id, el: el})
				continue
			}

			out = append(out, appearMatch{doc: d.name, el: el})
		}
	}

	return out
}

func pathKey(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}

	return strings.Join(parts, ".")
}

// startElementDisappear completes once selector matches nothing in the main document.
func startElementDisappear(wt *watch) error {
	sel := strings.TrimSpace(wt.c.StringParam("selector"))
	if sel == "" || !dom.ValidSelector(sel) {
		return fmt.Errorf("elementDisappear: invalid selector %q", sel)
	}

	check := func() {
		main := wt.mainDoc()
		if main == nil || len(main.QuerySelectorAll(sel)) > 0 {
			return
		}

		wt.h.complete(entity.CompletionResult{Success: true, Event: "elementDisappear"})
	}

	wt.poll(check)
	check()

	return nil
}

// startCustomEvent completes with the detail of the first eventName event on the target: the
// main document by default, the window, or the first element matching a selector in the main
// document and then the canvas.
func startCustomEvent(wt *watch) error {
	name := wt.c.StringParam("eventName")
	if name == "" {
		return errors.New("customEvent: eventName is required")
	}

	onEvent := func(ev *dom.Event) {
		wt.h.complete(entity.CompletionResult{Success: true, Event: name, Detail: ev.Detail})
	}

	main := wt.mainDoc()
	if main == nil {
		return errors.New("customEvent: no document loaded")
	}

	switch target := strings.TrimSpace(wt.c.StringParam("target")); target {
	case "", targetDocument, targetWindow:
		wt.h.addCleanup(main.AddEventListener(name, false, onEvent))
	default:
		el := main.QuerySelector(target)
		if el == nil {
			if canvas := wt.canvasDoc(); canvas != nil {
				el = canvas.QuerySelector(target)
			}
		}

		if el == nil {
			return fmt.Errorf("customEvent: target %s not found", locator.CSSString(target))
		}

		wt.h.addCleanup(el.AddEventListener(name, false, onEvent))
	}

	return nil
}
