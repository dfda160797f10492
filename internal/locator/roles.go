package locator

import (
	"strings"

	"tourguide/internal/dom"
)

const maxNameLength = 80

var inputRoles = map[string]string{
	"button":   "button",
	"submit":   "button",
	"reset":    "button",
	"image":    "button",
	"checkbox": "checkbox",
	"radio":    "radio",
	"range":    "slider",
	"text":     "textbox",
	"email":    "textbox",
	"tel":      "textbox",
	"url":      "textbox",
	"password": "textbox",
	"search":   "searchbox",
	"number":   "spinbutton",
}

var tagRoles = map[string]string{
	"button":   "button",
	"textarea": "textbox",
	"select":   "listbox",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"nav":      "navigation",
	"main":     "main",
	"header":   "banner",
	"footer":   "contentinfo",
	"aside":    "complementary",
	"form":     "form",
	"ul":       "list",
	"ol":       "list",
	"li":       "listitem",
	"dialog":   "dialog",
	"table":    "table",
	"option":   "option",
	"progress": "progressbar",
}

// roleSelectors is the inverse of the implicit-role table, used when resolving role locators.
var roleSelectors = map[string]string{
	"button":        `button, input[type="button"], input[type="submit"], input[type="reset"], input[type="image"]`,
	"link":          `a[href]`,
	"checkbox":      `input[type="checkbox"]`,
	"radio":         `input[type="radio"]`,
	"slider":        `input[type="range"]`,
	"textbox":       `input:not([type]), input[type="text"], input[type="email"], input[type="tel"], input[type="url"], input[type="password"], textarea`,
	"searchbox":     `input[type="search"]`,
	"spinbutton":    `input[type="number"]`,
	"listbox":       `select`,
	"heading":       `h1, h2, h3, h4, h5, h6`,
	"navigation":    `nav`,
	"main":          `main`,
	"banner":        `header`,
	"contentinfo":   `footer`,
	"complementary": `aside`,
	"form":          `form`,
	"list":          `ul, ol`,
	"listitem":      `li`,
	"img":           `img[alt]`,
	"dialog":        `dialog`,
	"table":         `table`,
	"option":        `option`,
	"progressbar":   `progress`,
}

// Roles whose accessible name may come from their own text.
var nameFromContent = map[string]bool{
	"button":   true,
	"link":     true,
	"menuitem": true,
	"tab":      true,
	"option":   true,
	"checkbox": true,
	"radio":    true,
	"switch":   true,
	"treeitem": true,
}

// ImplicitRole returns the role markup confers on el without a role attribute.
func ImplicitRole(el *dom.Element) string {
	tag := el.TagName()

	switch tag {
	case "a":
		if el.HasAttribute("href") {
			return "link"
		}

		return ""
	case "img":
		if el.HasAttribute("alt") {
			return "img"
		}

		return ""
	case "input":
		typ := strings.ToLower(strings.TrimSpace(el.GetAttribute("type")))
		if typ == "" {
			return "textbox"
		}

		return inputRoles[typ]
	}

	return tagRoles[tag]
}

// RoleOf returns the explicit role (first token of the role attribute) or the implicit one.
func RoleOf(el *dom.Element) string {
	if fields := strings.Fields(el.GetAttribute("role")); len(fields) > 0 {
		return strings.ToLower(fields[0])
	}

	return ImplicitRole(el)
}

// RoleSelector returns the CSS matching elements that carry role implicitly.
func RoleSelector(role string) string {
	return roleSelectors[role]
}

// AccessibleName resolves a name by aria-label, aria-labelledby, label[for], title and, for
// interactive roles, the element's own text.
func AccessibleName(el *dom.Element, role string) string {
	if v := normalizeSpace(el.GetAttribute("aria-label")); v != "" {
		return truncateName(v)
	}

	if ids := strings.Fields(el.GetAttribute("aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if ref := el.Document().GetElementByID(id); ref != nil {
				if txt := normalizeSpace(ref.TextContent()); txt != "" {
					parts = append(parts, txt)
				}
			}
		}

		if len(parts) > 0 {
			return truncateName(strings.Join(parts, " "))
		}
	}

	if id := el.ID(); id != "" {
		if label := el.Document().QuerySelector("label" + AttrSelector("for", id)); label != nil {
			if txt := normalizeSpace(label.TextContent()); txt != "" {
				return truncateName(txt)
			}
		}
	}

	if v := normalizeSpace(el.GetAttribute("title")); v != "" {
		return truncateName(v)
	}

	if nameFromContent[role] {
		return truncateName(normalizeSpace(el.TextContent()))
	}

	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateName(s string) string {
	r := []rune(s)
	if len(r) <= maxNameLength {
		return s
	}

	return strings.TrimSpace(string(r[:maxNameLength]))
}
