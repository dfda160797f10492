package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var nonRendered = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"template": true,
	"noscript": true,
	"meta":     true,
	"link":     true,
	"title":    true,
	"base":     true,
}

// Visible approximates layout visibility from markup: the element and every ancestor must be
// rendered and not hidden by attribute, inline style or the mirror's hidden stamp.
func (e *Element) Visible() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	n := e.node
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hiddenNode(n) {
			return false
		}
	}

	return n == e.doc.root
}

func hiddenNode(n *html.Node) bool {
	if nonRendered[n.Data] {
		return true
	}

	if _, ok := lookupAttr(n, "hidden"); ok {
		return true
	}

	if _, ok := lookupAttr(n, AttrHidden); ok {
		return true
	}

	if n.Data == "input" && strings.EqualFold(attr(n, "type"), "hidden") {
		return true
	}

	style := parseStyle(attr(n, "style"))

	if style["display"] == "none" {
		return true
	}

	switch style["visibility"] {
	case "hidden", "collapse":
		return true
	}

	if op, ok := style["opacity"]; ok {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
			return true
		}
	}

	return false
}

func parseStyle(s string) map[string]string {
	out := make(map[string]string)

	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}

		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(v)
	}

	return out
}
