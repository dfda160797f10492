package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// formState holds live properties that diverge from attributes once a user edits a control.
type formState struct {
	value   *string
	checked *bool
}

func (e *Element) IsFormControl() bool {
	switch e.node.Data {
	case "input", "textarea", "select":
		return true
	}

	return false
}

// IsCheckable reports whether e is a checkbox or radio input.
func (e *Element) IsCheckable() bool {
	if e.node.Data != "input" {
		return false
	}

	switch strings.ToLower(e.GetAttribute("type")) {
	case "checkbox", "radio":
		return true
	}

	return false
}

func (e *Element) IsContentEditable() bool {
	v, ok := e.Attr("contenteditable")
	if !ok {
		return false
	}

	return !strings.EqualFold(strings.TrimSpace(v), "false")
}

// Value mirrors the DOM .value property.
func (e *Element) Value() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	if st, ok := e.doc.props[e.node]; ok && st.value != nil {
		return *st.value
	}

	if v, ok := lookupAttr(e.node, AttrValue); ok {
		return v
	}

	switch e.node.Data {
	case "textarea":
		return textOf(e.node)
	case "select":
		return selectedOptionValue(e.node)
	case "input":
		if v, ok := lookupAttr(e.node, "value"); ok {
			return v
		}

		switch strings.ToLower(attr(e.node, "type")) {
		case "checkbox", "radio":
			return "on"
		}

		return ""
	}

	return attr(e.node, "value")
}

func selectedOptionValue(sel *html.Node) string {
	var first, selected *html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && selected == nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}

			if c.Data == "option" {
				if first == nil {
					first = c
				}

				if _, ok := lookupAttr(c, "selected"); ok {
					selected = c
				}

				continue
			}

			walk(c)
		}
	}
	walk(sel)

	opt := selected
	if opt == nil {
		opt = first
	}

	if opt == nil {
		return ""
	}

	if v, ok := lookupAttr(opt, "value"); ok {
		return v
	}

	return strings.TrimSpace(textOf(opt))
}

func (e *Element) Checked() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	if st, ok := e.doc.props[e.node]; ok && st.checked != nil {
		return *st.checked
	}

	if v, ok := lookupAttr(e.node, AttrChecked); ok {
		return v == "true"
	}

	_, ok := lookupAttr(e.node, "checked")

	return ok
}

// SetValue updates the .value property. Like a browser, it fires no mutation; callers dispatch
// input/change events themselves.
func (e *Element) SetValue(v string) {
	e.doc.mu.Lock()
	e.stateLocked().value = &v
	e.doc.mu.Unlock()
}

func (e *Element) SetChecked(v bool) {
	e.doc.mu.Lock()
	e.stateLocked().checked = &v
	e.doc.mu.Unlock()
}

func (e *Element) stateLocked() *formState {
	st, ok := e.doc.props[e.node]
	if !ok {
		st = &formState{}
		e.doc.props[e.node] = st
	}

	return st
}

// ResetFormState drops .value and .checked overrides so the stamped markup is read again.
func (d *Document) ResetFormState() {
	d.mu.Lock()
	d.props = make(map[*html.Node]*formState)
	d.mu.Unlock()
}
