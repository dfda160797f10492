// Package locator turns a picked element into a locator bundle that survives re-renders, and
// holds the role and naming helpers shared with the resolver.
package locator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/pkg/logg"
	"tourguide/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	capturerName  = "LocatorCapture"
	captureTracer = "locator.capture"

	WeightTestID        = 100
	WeightID            = 95
	WeightDataType      = 85
	WeightRole          = 80
	WeightDataFramework = 75
	WeightData          = 70
	WeightPath          = 60
	WeightContextual    = 50
	WeightBlockType     = 45
	WeightAriaLabel     = 40
	WeightPosition      = 10

	maxDataAttributes  = 2
	maxDataValueLength = 100
	maxPathDepth       = 3
	maxContainerDepth  = 5
	maxTextLength      = 200
	maxAncestors       = 3
	maxContextClasses  = 5

	frameworkDataPrefix = "wp-"
)

var excludedDataKeys = map[string]bool{
	"testid":  true,
	"reactid": true,
	"block":   true,
}

var contextDataKeys = []string{"data-type", "data-title", "data-testid", "data-align", "data-name", "data-slug"}

var landmarkTags = map[string]bool{
	"nav":    true,
	"main":   true,
	"header": true,
	"footer": true,
	"aside":  true,
	"form":   true,
	"dialog": true,
}

var landmarkRoles = map[string]bool{
	"navigation":    true,
	"main":          true,
	"banner":        true,
	"contentinfo":   true,
	"complementary": true,
	"form":          true,
	"region":        true,
	"dialog":        true,
	"toolbar":       true,
	"menu":          true,
	"search":        true,
	"tabpanel":      true,
}

// Editor regions recognised as containers for contextual locators.
var containerClasses = []string{
	"edit-post-header",
	"editor-header",
	"interface-interface-skeleton__sidebar",
	"edit-post-sidebar",
	"block-editor-block-toolbar",
	"block-editor-inserter__menu",
	"components-popover",
	"components-modal__frame",
	"editor-styles-wrapper",
	"block-editor-block-list__layout",
}

type Options struct {
	InEditorFrame bool
}

type Capturer struct {
	logger *zap.Logger
	tracer trace.Tracer
	policy *Policy
}

type Params struct {
	fx.In

	Logger *zap.Logger
	Policy *Policy `optional:"true"`
}

func NewCapturer(params Params) *Capturer {
	policy := params.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Capturer{
		logger: params.Logger.With(zap.String(logg.Layer, capturerName)),
		tracer: otel.Tracer(captureTracer),
		policy: policy,
	}
}

func (c *Capturer) Policy() *Policy {
	return c.policy
}

// Capture builds the locator bundle for el. For any element it returns at least one locator:
// when no stronger signal exists a low-weight positional locator is synthesized. A nil element
// is invalid input and yields a target without locators; callers look the element up first.
func (c *Capturer) Capture(ctx context.Context, el *dom.Element, opts Options) entity.Target {
	const op = "Capture"
	logger := c.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, c.tracer, logger, op, attribute.Bool("in_editor_frame", opts.InEditorFrame))

	target := entity.Target{
		Constraints: entity.Constraints{SearchInEditorFrame: opts.InEditorFrame},
	}

	if el == nil {
		logger.Warn("Capture called without an element")
		step.EndResult(false, "no element")

		return target
	}

	target.Locators = c.locators(el)

	sort.SliceStable(target.Locators, func(i, j int) bool {
		return target.Locators[i].Weight > target.Locators[j].Weight
	})

	if len(target.Locators) == 1 && target.Locators[0].Weight == WeightPosition {
		logger.Warn("Capture degraded to positional locator",
			zap.String(logg.Locator, target.Locators[0].Value))
	}

	step.SetAttributes(attribute.Int("locators", len(target.Locators)))
	step.EndResult(true, "")

	logger.Debug("Captured target",
		zap.String("tag", el.TagName()),
		zap.Int("locators", len(target.Locators)))

	return target
}

func (c *Capturer) locators(el *dom.Element) []entity.Locator {
	var out []entity.Locator
	seen := make(map[string]bool)

	add := func(loc entity.Locator) {
		key := string(loc.Kind) + "\x00" + loc.Value
		if loc.Value == "" || seen[key] {
			return
		}

		seen[key] = true
		out = append(out, loc)
	}

	if testID := el.GetAttribute("data-testid"); testID != "" && !c.policy.IsUniqueID(testID) {
		add(entity.Locator{Kind: entity.LocatorTestID, Value: testID, Weight: WeightTestID})
	}

	if id := el.ID(); id != "" && !c.policy.IsUniqueID(id) {
		add(entity.Locator{Kind: entity.LocatorCSS, Value: "#" + CSSEscape(id), Weight: WeightID})
	}

	if role := RoleOf(el); role != "" {
		value := role
		if name := AccessibleName(el, role); name != "" {
			value = role + ":" + name
		}

		add(entity.Locator{Kind: entity.LocatorRole, Value: value, Weight: WeightRole})
	}

	for _, loc := range c.dataAttributeLocators(el) {
		add(loc)
	}

	if path := c.cssPath(el); path != "" {
		add(entity.Locator{Kind: entity.LocatorCSS, Value: path, Weight: WeightPath})
	}

	if label := strings.TrimSpace(el.GetAttribute("aria-label")); label != "" {
		add(entity.Locator{Kind: entity.LocatorAriaLabel, Value: label, Weight: WeightAriaLabel, IsFallback: true})
	}

	if contextual := c.contextual(el); contextual != "" {
		add(entity.Locator{Kind: entity.LocatorContextual, Value: contextual, Weight: WeightContextual, IsFallback: true})
	}

	if blockType := el.GetAttribute("data-type"); blockType != "" {
		add(entity.Locator{
			Kind:       entity.LocatorCSS,
			Value:      AttrSelector("data-type", blockType) + ":first-of-type",
			Weight:     WeightBlockType,
			IsFallback: true,
		})
	}

	if len(out) == 0 {
		out = append(out, entity.Locator{
			Kind:       entity.LocatorCSS,
			Value:      fmt.Sprintf("%s:nth-child(%d)", el.TagName(), el.SiblingIndex()),
			Weight:     WeightPosition,
			IsFallback: true,
		})
	}

	return out
}

func (c *Capturer) dataAttributeLocators(el *dom.Element) []entity.Locator {
	var out []entity.Locator

	for _, a := range el.Attributes() {
		if len(out) == maxDataAttributes {
			break
		}

		if !strings.HasPrefix(a.Key, "data-") || dom.IsInternalAttribute(a.Key) {
			continue
		}

		key := strings.TrimPrefix(a.Key, "data-")
		if excludedDataKeys[key] || len(a.Val) > maxDataValueLength || c.policy.IsUniqueID(a.Val) {
			continue
		}

		weight := WeightData
		switch {
		case key == "type":
			weight = WeightDataType
		case strings.HasPrefix(key, frameworkDataPrefix):
			weight = WeightDataFramework
		}

		value := key
		if a.Val != "" {
			value = key + ":" + a.Val
		}

		out = append(out, entity.Locator{Kind: entity.LocatorDataAttribute, Value: value, Weight: weight})
	}

	return out
}

func (c *Capturer) cssPath(el *dom.Element) string {
	if id := el.ID(); id != "" && !c.policy.IsUniqueID(id) {
		return "#" + CSSEscape(id)
	}

	var segments []string
	cur := el
	for depth := 0; cur != nil && depth < maxPathDepth; depth++ {
		if tag := cur.TagName(); tag == "body" || tag == "html" {
			break
		}

		segments = append([]string{c.pathSegment(cur)}, segments...)
		cur = cur.Parent()
	}

	return strings.Join(segments, " > ")
}

func (c *Capturer) pathSegment(el *dom.Element) string {
	var b strings.Builder
	b.WriteString(el.TagName())

	if testID := el.GetAttribute("data-testid"); testID != "" && !c.policy.IsUniqueID(testID) {
		b.WriteString(AttrSelector("data-testid", testID))
	} else {
		for _, class := range c.policy.StableClasses(el.ClassList(), 2) {
			b.WriteString("." + CSSEscape(class))
		}

		if typ := el.GetAttribute("type"); typ != "" {
			b.WriteString(AttrSelector("type", typ))
		}

		if name := el.GetAttribute("name"); name != "" && !c.policy.IsUniqueID(name) {
			b.WriteString(AttrSelector("name", name))
		}
	}

	if idx, count := el.TypeIndex(); count > 1 {
		fmt.Fprintf(&b, ":nth-of-type(%d)", idx)
	}

	return b.String()
}

func (c *Capturer) contextual(el *dom.Element) string {
	var container *dom.Element

	cur := el.Parent()
	for depth := 0; cur != nil && depth < maxContainerDepth; depth++ {
		if tag := cur.TagName(); tag == "body" || tag == "html" {
			break
		}

		if c.isContainer(cur) {
			container = cur
			break
		}

		cur = cur.Parent()
	}

	if container == nil {
		return ""
	}

	target := el.TagName()
	if classes := c.policy.StableClasses(el.ClassList(), 1); len(classes) > 0 {
		target += "." + CSSEscape(classes[0])
	}

	return c.containerSelector(container) + " >> " + target
}

func (c *Capturer) isContainer(el *dom.Element) bool {
	if landmarkTags[el.TagName()] {
		return true
	}

	if landmarkRoles[strings.ToLower(strings.TrimSpace(el.GetAttribute("role")))] {
		return true
	}

	return knownContainerClass(el) != ""
}

func knownContainerClass(el *dom.Element) string {
	classes := el.ClassList()
	for _, known := range containerClasses {
		for _, cls := range classes {
			if cls == known {
				return known
			}
		}
	}

	return ""
}

func (c *Capturer) containerSelector(el *dom.Element) string {
	if id := el.ID(); id != "" && !c.policy.IsUniqueID(id) {
		return "#" + CSSEscape(id)
	}

	if cls := knownContainerClass(el); cls != "" {
		return "." + cls
	}

	if role := strings.TrimSpace(el.GetAttribute("role")); role != "" {
		return AttrSelector("role", role)
	}

	return el.TagName()
}

// CaptureElementContext summarizes el for step drafting. It does not affect the target.
func (c *Capturer) CaptureElementContext(el *dom.Element) entity.ElementContext {
	if el == nil {
		return entity.ElementContext{}
	}

	role := RoleOf(el)
	ec := entity.ElementContext{
		TagName:     el.TagName(),
		Role:        role,
		Classes:     c.policy.StableClasses(el.ClassList(), maxContextClasses),
		TextContent: truncateText(normalizeSpace(el.TextContent()), maxTextLength),
		Placeholder: el.GetAttribute("placeholder"),
		Label:       AccessibleName(el, role),
	}

	if id := el.ID(); id != "" && !c.policy.IsUniqueID(id) {
		ec.ID = id
	}

	for _, key := range contextDataKeys {
		v, ok := el.Attr(key)
		if !ok || v == "" || c.policy.IsUniqueID(v) {
			continue
		}

		if ec.DataAttributes == nil {
			ec.DataAttributes = make(map[string]string)
		}
		ec.DataAttributes[key] = v
	}

	for cur := el.Parent(); cur != nil && len(ec.Ancestors) < maxAncestors; cur = cur.Parent() {
		if tag := cur.TagName(); tag == "body" || tag == "html" {
			break
		}

		summary := entity.AncestorSummary{
			Tag:     cur.TagName(),
			Role:    RoleOf(cur),
			Classes: c.policy.StableClasses(cur.ClassList(), 3),
		}
		if id := cur.ID(); id != "" && !c.policy.IsUniqueID(id) {
			summary.ID = id
		}

		ec.Ancestors = append(ec.Ancestors, summary)

		// a block wrapper is the boundary of the element's own context
		if cur.HasAttribute("data-block") {
			break
		}
	}

	return ec
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	return string(r[:max]) + "..."
}
