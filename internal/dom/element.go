package dom

import (
	"strconv"
	"strings"

	"tourguide/internal/entity"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Element is a handle to an element node. Handles are identity-stable within a document:
// the same node always yields the same *Element.
type Element struct {
	doc  *Document
	node *html.Node
}

func (e *Element) Document() *Document {
	return e.doc
}

func (e *Element) TagName() string {
	return e.node.Data
}

func (e *Element) ID() string {
	return e.GetAttribute("id")
}

func (e *Element) GetAttribute(name string) string {
	v, _ := e.Attr(name)

	return v
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	return lookupAttr(e.node, strings.ToLower(name))
}

func (e *Element) HasAttribute(name string) bool {
	_, ok := e.Attr(name)

	return ok
}

// Attributes returns a copy of the attribute list in source order.
func (e *Element) Attributes() []html.Attribute {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	out := make([]html.Attribute, len(e.node.Attr))
	copy(out, e.node.Attr)

	return out
}

func (e *Element) ClassList() []string {
	return strings.Fields(e.GetAttribute("class"))
}

func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	p := e.node.Parent
	e.doc.mu.RUnlock()

	if p == nil || p.Type != html.ElementNode {
		return nil
	}

	return e.doc.wrap(p)
}

func (e *Element) Children() []*Element {
	e.doc.mu.RLock()
	var nodes []*html.Node
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			nodes = append(nodes, c)
		}
	}
	e.doc.mu.RUnlock()

	return e.doc.wrapAll(nodes)
}

func (e *Element) TextContent() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	return textOf(e.node)
}

func textOf(n *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
			case html.ElementNode:
				walk(c)
			}
		}
	}
	walk(n)

	return b.String()
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	if other == nil || other.doc != e.doc {
		return false
	}

	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	return isAncestorOrSelf(e.node, other.node)
}

func isAncestorOrSelf(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}

	return false
}

func (e *Element) Matches(sel string) bool {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return false
	}

	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	return group.Match(e.node)
}

// Closest returns the nearest inclusive ancestor matching sel.
func (e *Element) Closest(sel string) *Element {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return nil
	}

	e.doc.mu.RLock()
	var found *html.Node
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if group.Match(n) {
			found = n
			break
		}
	}
	e.doc.mu.RUnlock()

	return e.doc.wrap(found)
}

// QuerySelectorAll matches descendants of e, in document order.
func (e *Element) QuerySelectorAll(sel string) []*Element {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return nil
	}

	e.doc.mu.RLock()
	nodes := cascadia.QueryAll(e.node, group)
	e.doc.mu.RUnlock()

	return e.doc.wrapAll(nodes)
}

func (e *Element) QuerySelector(sel string) *Element {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return nil
	}

	e.doc.mu.RLock()
	n := cascadia.Query(e.node, group)
	e.doc.mu.RUnlock()

	return e.doc.wrap(n)
}

// IsConnected reports whether e is still attached to its document.
func (e *Element) IsConnected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	return isAncestorOrSelf(e.doc.root, e.node)
}

// SiblingIndex is e's 1-based position among its parent's element children.
func (e *Element) SiblingIndex() int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	idx := 1
	for s := e.node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}

	return idx
}

// TypeIndex is e's 1-based position among siblings with the same tag, and the number of such siblings.
func (e *Element) TypeIndex() (index, count int) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	if e.node.Parent == nil {
		return 1, 1
	}

	for c := e.node.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != e.node.Data {
			continue
		}

		count++
		if c == e.node {
			index = count
		}
	}

	return index, count
}

// Path is the element-child index path from the document element.
func (e *Element) Path() []int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	var rev []int
	for n := e.node; n != nil && n.Parent != nil && n.Parent.Type == html.ElementNode; n = n.Parent {
		idx := 0
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				idx++
			}
		}
		rev = append(rev, idx)
	}

	path := make([]int, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}

	return path
}

// BoundingRect returns the layout box stamped by the browser mirror, if any.
func (e *Element) BoundingRect() (entity.Rect, bool) {
	raw, ok := e.Attr(AttrRect)
	if !ok {
		return entity.Rect{}, false
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return entity.Rect{}, false
	}

	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return entity.Rect{}, false
		}
		vals[i] = f
	}

	return entity.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true
}

func (e *Element) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	var b strings.Builder
	_ = html.Render(&b, e.node)

	return b.String()
}

func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	var b strings.Builder
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}

	return b.String()
}
