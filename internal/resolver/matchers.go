package resolver

import (
	"strings"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"
)

const contextualSeparator = " >> "

type matcher func(s *scope, value string) []*dom.Element

var matchers = map[entity.LocatorKind]matcher{
	entity.LocatorCSS:           matchCSS,
	entity.LocatorRole:          matchRole,
	entity.LocatorTestID:        matchTestID,
	entity.LocatorDataAttribute: matchDataAttribute,
	entity.LocatorAriaLabel:     matchAriaLabel,
	entity.LocatorContextual:    matchContextual,
	entity.LocatorWPBlock:       matchWPBlock,
}

func matchCSS(s *scope, value string) []*dom.Element {
	return s.doc.QuerySelectorAll(value)
}

// matchRole unions explicit role attributes with the implicit-role markup, drops elements whose
// explicit role overrides the implicit one, then filters by accessible name substring when the
// value carries one.
func matchRole(s *scope, value string) []*dom.Element {
	role, name, _ := strings.Cut(value, ":")
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return nil
	}

	sel := locator.AttrSelector("role", role)
	if implicit := locator.RoleSelector(role); implicit != "" {
		sel += ", " + implicit
	}

	name = strings.ToLower(strings.TrimSpace(name))

	var out []*dom.Element
	for _, el := range s.doc.QuerySelectorAll(sel) {
		if locator.RoleOf(el) != role {
			continue
		}

		if name == "" || strings.Contains(strings.ToLower(locator.AccessibleName(el, role)), name) {
			out = append(out, el)
		}
	}

	return out
}

func matchTestID(s *scope, value string) []*dom.Element {
	if value == "" {
		return nil
	}

	return s.doc.QuerySelectorAll(locator.AttrSelector("data-testid", value))
}

func matchDataAttribute(s *scope, value string) []*dom.Element {
	key, val, _ := strings.Cut(value, ":")
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	if !strings.HasPrefix(key, "data-") {
		key = "data-" + key
	}

	return s.doc.QuerySelectorAll(locator.AttrSelector(key, val))
}

func matchAriaLabel(s *scope, value string) []*dom.Element {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return nil
	}

	var out []*dom.Element
	for _, el := range s.doc.QuerySelectorAll("[aria-label]") {
		if strings.Contains(strings.ToLower(el.GetAttribute("aria-label")), needle) {
			out = append(out, el)
		}
	}

	return out
}

func matchContextual(s *scope, value string) []*dom.Element {
	parts := strings.Split(value, contextualSeparator)
	if len(parts) != 2 {
		return s.doc.QuerySelectorAll(value)
	}

	container := s.doc.QuerySelector(strings.TrimSpace(parts[0]))
	if container == nil {
		return nil
	}

	return container.QuerySelectorAll(strings.TrimSpace(parts[1]))
}

func matchWPBlock(s *scope, value string) []*dom.Element {
	return s.blockWrappers(s.resolveBlockRef(value))
}
