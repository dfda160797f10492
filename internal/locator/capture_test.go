package locator

import (
	"context"
	"strings"
	"testing"

	"tourguide/internal/dom"
	"tourguide/internal/entity"

	"go.uber.org/zap"
)

func newTestCapturer() *Capturer {
	return NewCapturer(Params{Logger: zap.NewNop()})
}

func pick(t *testing.T, src, selector string) *dom.Element {
	t.Helper()

	el := dom.MustParse(src).QuerySelector(selector)
	if el == nil {
		t.Fatalf("fixture has no %s", selector)
	}

	return el
}

func findLocator(locs []entity.Locator, kind entity.LocatorKind, value string) *entity.Locator {
	for i := range locs {
		if locs[i].Kind == kind && locs[i].Value == value {
			return &locs[i]
		}
	}

	return nil
}

func TestCapture_SaveButton(t *testing.T) {
	el := pick(t, `<html><body><button id="save-btn" class="css-x1 components-button">Save</button></body></html>`, "button")

	target := newTestCapturer().Capture(context.Background(), el, Options{})

	id := findLocator(target.Locators, entity.LocatorCSS, "#save-btn")
	if id == nil || id.Weight != WeightID {
		t.Fatalf("expected #save-btn at weight 95, got %+v", target.Locators)
	}

	if findLocator(target.Locators, entity.LocatorRole, "button:Save") == nil {
		t.Errorf("expected role locator button:Save, got %+v", target.Locators)
	}

	for _, loc := range target.Locators {
		if strings.Contains(loc.Value, "css-x1") {
			t.Errorf("generated class leaked into %+v", loc)
		}
	}

	for i := 1; i < len(target.Locators); i++ {
		if target.Locators[i-1].Weight < target.Locators[i].Weight {
			t.Errorf("locators not sorted by weight: %+v", target.Locators)
		}
	}
}

func TestCapture_UniqueIDsExcluded(t *testing.T) {
	ids := []string{
		"block-3f2a9c1e-9b7d-4c1a-8e2f-0a1b2c3d4e5f",
		"3f2a9c1e-9b7d-4c1a-8e2f-0a1b2c3d4e5f",
		"panel-deadbeef42",
		"abcdef0123",
		"field_1a2b3c4d5e",
	}

	for _, id := range ids {
		el := pick(t, `<html><body><div id="`+id+`" data-testid="`+id+`">x</div></body></html>`, "div")
		target := newTestCapturer().Capture(context.Background(), el, Options{})

		for _, loc := range target.Locators {
			if strings.Contains(loc.Value, id) {
				t.Errorf("%s: unique id used in %+v", id, loc)
			}
		}
	}
}

func TestCapture_AlwaysProducesALocator(t *testing.T) {
	el := pick(t, `<html><body><div><span></span><span></span></div></body></html>`, "span:nth-child(2)")

	target := newTestCapturer().Capture(context.Background(), el, Options{})
	if len(target.Locators) == 0 {
		t.Fatal("expected at least one locator")
	}
}

func TestCapture_PositionalFallbackWhenNothingElse(t *testing.T) {
	el := pick(t, `<html><head></head><body></body></html>`, "body")

	target := newTestCapturer().Capture(context.Background(), el, Options{})

	if len(target.Locators) != 1 {
		t.Fatalf("expected only the positional locator, got %+v", target.Locators)
	}

	loc := target.Locators[0]
	if loc.Value != "body:nth-child(2)" || loc.Weight != WeightPosition || !loc.IsFallback {
		t.Errorf("unexpected positional locator %+v", loc)
	}
}

func TestCapture_DataAttributesAndBlockType(t *testing.T) {
	src := `<html><body><div class="block-editor-block-list__layout">
		<div data-block="3f2a9c1e-9b7d-4c1a-8e2f-0a1b2c3d4e5f" data-type="core/paragraph" data-wp-context="x" data-title="Paragraph" class="wp-block-paragraph">Hi</div>
	</div></body></html>`
	el := pick(t, src, "[data-type]")

	target := newTestCapturer().Capture(context.Background(), el, Options{InEditorFrame: true})

	if !target.Constraints.SearchInEditorFrame {
		t.Error("InEditorFrame not carried into constraints")
	}

	typeLoc := findLocator(target.Locators, entity.LocatorDataAttribute, "type:core/paragraph")
	if typeLoc == nil || typeLoc.Weight != WeightDataType {
		t.Errorf("expected type data attribute at 85, got %+v", target.Locators)
	}

	wpLoc := findLocator(target.Locators, entity.LocatorDataAttribute, "wp-context:x")
	if wpLoc == nil || wpLoc.Weight != WeightDataFramework {
		t.Errorf("expected framework data attribute at 75, got %+v", target.Locators)
	}

	if findLocator(target.Locators, entity.LocatorDataAttribute, "title:Paragraph") != nil {
		t.Error("more than two data attributes captured")
	}

	for _, loc := range target.Locators {
		if loc.Kind == entity.LocatorDataAttribute && strings.HasPrefix(loc.Value, "block") {
			t.Errorf("block id captured as data attribute: %+v", loc)
		}
	}

	blockType := findLocator(target.Locators, entity.LocatorCSS, `[data-type="core/paragraph"]:first-of-type`)
	if blockType == nil || !blockType.IsFallback || blockType.Weight != WeightBlockType {
		t.Errorf("expected block-type fallback, got %+v", target.Locators)
	}

	ctxLoc := findLocator(target.Locators, entity.LocatorContextual, ".block-editor-block-list__layout >> div.wp-block-paragraph")
	if ctxLoc == nil || !ctxLoc.IsFallback {
		t.Errorf("expected contextual locator, got %+v", target.Locators)
	}
}

func TestCapture_AriaLabelIsFallback(t *testing.T) {
	el := pick(t, `<html><body><header><button aria-label="Add block" class="components-button">+</button></header></body></html>`, "button")

	target := newTestCapturer().Capture(context.Background(), el, Options{})

	aria := findLocator(target.Locators, entity.LocatorAriaLabel, "Add block")
	if aria == nil || !aria.IsFallback || aria.Weight != WeightAriaLabel {
		t.Errorf("expected fallback aria-label locator, got %+v", target.Locators)
	}

	if findLocator(target.Locators, entity.LocatorRole, "button:Add block") == nil {
		t.Errorf("expected role with aria name, got %+v", target.Locators)
	}

	if findLocator(target.Locators, entity.LocatorContextual, "header >> button.components-button") == nil {
		t.Errorf("expected contextual locator under header, got %+v", target.Locators)
	}
}

func TestCapture_GeneratedPath(t *testing.T) {
	src := `<html><body><div class="panel-body"><ul class="menu-list">
		<li><input type="text" name="title"></li>
		<li><input type="text" name="slug" class="sc-AxjAm field-input"></li>
	</ul></div></body></html>`
	el := pick(t, src, `input[name="slug"]`)

	target := newTestCapturer().Capture(context.Background(), el, Options{})

	want := `ul.menu-list > li:nth-of-type(2) > input.field-input[type="text"][name="slug"]`
	if findLocator(target.Locators, entity.LocatorCSS, want) == nil {
		t.Errorf("expected path %s, got %+v", want, target.Locators)
	}

	// the path must resolve back to the element
	if got := el.Document().QuerySelector(want); got != el {
		t.Errorf("generated path does not select the element")
	}
}

func TestCapture_NilElement(t *testing.T) {
	target := newTestCapturer().Capture(context.Background(), nil, Options{InEditorFrame: true})
	if len(target.Locators) != 0 {
		t.Errorf("expected no locators for invalid input, got %+v", target)
	}

	if !target.Constraints.SearchInEditorFrame {
		t.Error("constraints should still reflect the options")
	}
}

func TestCaptureElementContext(t *testing.T) {
	long := strings.Repeat("word ", 60)
	src := `<html><body><main id="content"><div data-block="x" class="wp-block">
		<section class="panel-section"><label for="q">Search posts</label>
		<input id="q" placeholder="Type here" data-type="search" data-foo="no" class="search-field">` +
		`<p id="long">` + long + `</p></section></div></main></body></html>`
	doc := dom.MustParse(src)
	c := newTestCapturer()

	ec := c.CaptureElementContext(doc.GetElementByID("q"))

	if ec.TagName != "input" || ec.Role != "textbox" || ec.ID != "q" {
		t.Errorf("unexpected identity: %+v", ec)
	}

	if ec.Label != "Search posts" || ec.Placeholder != "Type here" {
		t.Errorf("unexpected label/placeholder: %+v", ec)
	}

	if ec.DataAttributes["data-type"] != "search" || ec.DataAttributes["data-foo"] != "" {
		t.Errorf("unexpected data attributes: %v", ec.DataAttributes)
	}

	if len(ec.Ancestors) != 2 || ec.Ancestors[0].Tag != "section" || ec.Ancestors[1].Tag != "div" {
		t.Errorf("ancestors should stop at the block wrapper: %+v", ec.Ancestors)
	}

	para := c.CaptureElementContext(doc.GetElementByID("long"))
	if !strings.HasSuffix(para.TextContent, "...") || len([]rune(para.TextContent)) != maxTextLength+3 {
		t.Errorf("text not truncated: %d chars", len(para.TextContent))
	}
}
