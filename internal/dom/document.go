// Package dom is an in-process model of the editor's documents: parsed HTML with CSS queries,
// mutation, event dispatch and mutation observers. The live browser keeps it in sync; tests
// build it from HTML strings.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Attributes written by the browser mirror. They never describe the host page.
const (
	AttrPrefix  = "data-tour-"
	AttrHidden  = "data-tour-hidden"
	AttrRect    = "data-tour-rect"
	AttrValue   = "data-tour-value"
	AttrChecked = "data-tour-checked"
)

// IsInternalAttribute reports whether key is one of the mirror's own stamps.
func IsInternalAttribute(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), AttrPrefix)
}

type Document struct {
	mu   sync.RWMutex
	root *html.Node
	// guarded by mu
	props map[*html.Node]*formState

	cacheMu  sync.Mutex
	elements map[*html.Node]*Element

	listenersMu sync.Mutex
	listeners   []*listener
	observers   []*observer
	nextID      int

	nameMu sync.RWMutex
	name   string
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return newDocument(root), nil
}

func ParseString(src string) (*Document, error) {
	return Parse(strings.NewReader(src))
}

// MustParse parses src and panics on error. Meant for fixtures.
func MustParse(src string) *Document {
	doc, err := ParseString(src)
	if err != nil {
		panic(err)
	}

	return doc
}

func newDocument(root *html.Node) *Document {
	return &Document{
		root:     root,
		props:    make(map[*html.Node]*formState),
		elements: make(map[*html.Node]*Element),
	}
}

// FrameName is the name of the frame hosting this document, "" for the top-level document.
func (d *Document) FrameName() string {
	d.nameMu.RLock()
	defer d.nameMu.RUnlock()

	return d.name
}

func (d *Document) setFrameName(name string) {
	d.nameMu.Lock()
	d.name = name
	d.nameMu.Unlock()
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}

	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	if el, ok := d.elements[n]; ok {
		return el
	}

	el := &Element{doc: d, node: n}
	d.elements[n] = el

	return el
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	if len(nodes) == 0 {
		return nil
	}

	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}

	return out
}

var selectorCache sync.Map

func compile(sel string) (cascadia.SelectorGroup, bool) {
	if cached, ok := selectorCache.Load(sel); ok {
		group, valid := cached.(cascadia.SelectorGroup)

		return group, valid
	}

	group, err := cascadia.ParseGroup(sel)
	if err != nil || len(group) == 0 {
		selectorCache.Store(sel, false)

		return nil, false
	}

	selectorCache.Store(sel, group)

	return group, true
}

// ValidSelector reports whether sel can be used in queries.
func ValidSelector(sel string) bool {
	_, ok := compile(strings.TrimSpace(sel))

	return ok
}

// QuerySelectorAll returns matches in document order. Invalid selectors match nothing.
func (d *Document) QuerySelectorAll(sel string) []*Element {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return nil
	}

	d.mu.RLock()
	nodes := cascadia.QueryAll(d.root, group)
	d.mu.RUnlock()

	return d.wrapAll(nodes)
}

func (d *Document) QuerySelector(sel string) *Element {
	group, ok := compile(strings.TrimSpace(sel))
	if !ok {
		return nil
	}

	d.mu.RLock()
	n := cascadia.Query(d.root, group)
	d.mu.RUnlock()

	return d.wrap(n)
}

func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}

	d.mu.RLock()
	n := findNode(d.root, func(n *html.Node) bool {
		return attr(n, "id") == id
	})
	d.mu.RUnlock()

	return d.wrap(n)
}

func (d *Document) DocumentElement() *Element {
	d.mu.RLock()
	n := d.documentElementLocked()
	d.mu.RUnlock()

	return d.wrap(n)
}

func (d *Document) documentElementLocked() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}

	return nil
}

func (d *Document) Body() *Element {
	d.mu.RLock()
	n := findNode(d.root, func(n *html.Node) bool {
		return n.Data == "body"
	})
	d.mu.RUnlock()

	return d.wrap(n)
}

// ElementAt walks element-child indices from the document element.
func (d *Document) ElementAt(path []int) *Element {
	d.mu.RLock()
	n := d.documentElementLocked()
	for _, idx := range path {
		if n == nil {
			break
		}

		n = nthElementChild(n, idx)
	}
	d.mu.RUnlock()

	return d.wrap(n)
}

// Render serializes the whole document; used for diagnostics.
func (d *Document) Render() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	_ = html.Render(&b, d.root)

	return b.String()
}

func findNode(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}

		if pred(c) {
			return c
		}

		if found := findNode(c, pred); found != nil {
			return found
		}
	}

	return nil
}

func nthElementChild(n *html.Node, idx int) *html.Node {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}

		if i == idx {
			return c
		}
		i++
	}

	return nil
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)

	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}
