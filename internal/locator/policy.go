package locator

import (
	"regexp"
	"strings"
)

// Policy holds the heuristics that decide which ids and class names are stable enough to
// address an element by. The defaults are tuned to the block editor's markup.
type Policy struct {
	UniqueIDPatterns       []*regexp.Regexp
	GeneratedClassPatterns []*regexp.Regexp
	// Classes this short or shorter are never used.
	MinClassLength int
}

var (
	blockUUIDPattern = regexp.MustCompile(`(?i)^block-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	uuidPattern      = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	hexRunPattern    = regexp.MustCompile(`(?i)[0-9a-f]{8,}`)
	hexSuffixPattern = regexp.MustCompile(`(?i)[-_][0-9a-f]{8,}`)
)

func DefaultPolicy() *Policy {
	return &Policy{
		UniqueIDPatterns: []*regexp.Regexp{
			blockUUIDPattern,
			uuidPattern,
			hexRunPattern,
			hexSuffixPattern,
		},
		GeneratedClassPatterns: []*regexp.Regexp{
			// emotion / css-in-js
			regexp.MustCompile(`^(css|emotion|jsx|tw)-[a-z0-9]+`),
			// styled-components
			regexp.MustCompile(`^sc-[a-zA-Z0-9]+$`),
			// hashed suffix such as wp-elements-6f3c2a or button-x1y2z
			regexp.MustCompile(`[-_][a-zA-Z]*[0-9][a-zA-Z0-9]{3,}$`),
			regexp.MustCompile(`^[a-f0-9]{6,}$`),
			// CSS modules: Component_class__hash
			regexp.MustCompile(`^[A-Za-z0-9]+_[A-Za-z0-9]+__[A-Za-z0-9_-]{5}$`),
			regexp.MustCompile(`^[0-9]`),
		},
		MinClassLength: 3,
	}
}

// IsUniqueID reports whether id looks generated: a block uuid, a bare uuid, a run of eight or
// more hex characters, or a hex suffix.
func (p *Policy) IsUniqueID(id string) bool {
	for _, re := range p.UniqueIDPatterns {
		if re.MatchString(id) {
			return true
		}
	}

	return false
}

// IsStableClass reports whether a class name is safe to use in a selector.
func (p *Policy) IsStableClass(class string) bool {
	if len(class) <= p.MinClassLength {
		return false
	}

	for _, re := range p.GeneratedClassPatterns {
		if re.MatchString(class) {
			return false
		}
	}

	return true
}

// StableClasses filters classes in order, keeping at most max (0 keeps all).
func (p *Policy) StableClasses(classes []string, max int) []string {
	var out []string

	for _, c := range classes {
		if !p.IsStableClass(c) {
			continue
		}

		out = append(out, c)
		if max > 0 && len(out) == max {
			break
		}
	}

	return out
}

// CSSEscape escapes an identifier for use after # or . in a selector.
func CSSEscape(ident string) string {
	var b strings.Builder

	for i, r := range ident {
		switch {
		case r == 0:
			b.WriteString(`\fffd `)
		case i == 0 && r >= '0' && r <= '9':
			b.WriteString(`\3`)
			b.WriteRune(r)
			b.WriteByte(' ')
		case i == 0 && r == '-' && len(ident) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}

	return b.String()
}

// CSSString quotes s as a CSS string literal.
func CSSString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

	return `"` + r.Replace(s) + `"`
}

// AttrSelector builds [name="value"], or [name] when value is empty.
func AttrSelector(name, value string) string {
	if value == "" {
		return "[" + name + "]"
	}

	return "[" + name + "=" + CSSString(value) + "]"
}
