package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

func (e *Element) SetAttribute(name, value string) {
	name = strings.ToLower(name)

	e.doc.mu.Lock()
	replaced := false
	for i := range e.node.Attr {
		if e.node.Attr[i].Namespace == "" && e.node.Attr[i].Key == name {
			e.node.Attr[i].Val = value
			replaced = true
			break
		}
	}
	if !replaced {
		e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	}
	e.doc.mu.Unlock()

	e.doc.notify(e.node)
}

func (e *Element) RemoveAttribute(name string) {
	name = strings.ToLower(name)

	e.doc.mu.Lock()
	kept := e.node.Attr[:0]
	removed := false
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	e.node.Attr = kept
	e.doc.mu.Unlock()

	if removed {
		e.doc.notify(e.node)
	}
}

func (e *Element) SetTextContent(text string) {
	e.doc.mu.Lock()
	clearChildren(e.node)
	if text != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	e.doc.mu.Unlock()

	e.doc.notify(e.node)
}

// SetInnerHTML replaces e's children with the parsed fragment.
func (e *Element) SetInnerHTML(src string) error {
	nodes, err := e.parseFragment(src)
	if err != nil {
		return err
	}

	e.doc.mu.Lock()
	clearChildren(e.node)
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.doc.mu.Unlock()

	e.doc.notify(e.node)

	return nil
}

// PatchInnerHTML brings e's children in line with src. Nodes whose position and tag are
// unchanged are updated in place, so handles to them stay valid.
func (e *Element) PatchInnerHTML(src string) error {
	nodes, err := e.parseFragment(src)
	if err != nil {
		return err
	}

	e.doc.mu.Lock()
	reconcile(e.node, nodes)
	e.doc.mu.Unlock()

	e.doc.notify(e.node)

	return nil
}

func reconcile(parent *html.Node, fresh []*html.Node) {
	cur := parent.FirstChild

	for _, n := range fresh {
		if cur == nil || !sameKind(cur, n) {
			parent.InsertBefore(n, cur)
			continue
		}

		if cur.Type == html.ElementNode {
			cur.Attr = n.Attr

			var kids []*html.Node
			for c := n.FirstChild; c != nil; {
				next := c.NextSibling
				n.RemoveChild(c)
				kids = append(kids, c)
				c = next
			}
			reconcile(cur, kids)
		} else {
			cur.Data = n.Data
		}

		cur = cur.NextSibling
	}

	for cur != nil {
		next := cur.NextSibling
		parent.RemoveChild(cur)
		cur = next
	}
}

func sameKind(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}

	return a.Type != html.ElementNode || a.Data == b.Data
}

// AppendHTML parses src and appends the resulting nodes as e's last children.
// It returns the appended elements.
func (e *Element) AppendHTML(src string) ([]*Element, error) {
	nodes, err := e.parseFragment(src)
	if err != nil {
		return nil, err
	}

	e.doc.mu.Lock()
	var added []*html.Node
	for _, n := range nodes {
		e.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, n)
		}
	}
	e.doc.mu.Unlock()

	e.doc.notify(e.node)

	return e.doc.wrapAll(added), nil
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	parent := e.node.Parent
	if parent != nil {
		parent.RemoveChild(e.node)
	}
	e.doc.mu.Unlock()

	if parent != nil {
		e.doc.notify(parent)
	}
}

func (e *Element) parseFragment(src string) ([]*html.Node, error) {
	e.doc.mu.RLock()
	nodes, err := html.ParseFragment(strings.NewReader(src), e.node)
	e.doc.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	return nodes, nil
}

func clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}
