// File: internal/browser/selector.go
package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// SelectorKind tells the chromedp driver how to resolve a selector.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorXPath
)

// Selector is a parsed element selector.
type Selector struct {
	Kind  SelectorKind
	Query string
}

var hasTextPattern = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9_-]*)\s*:has-text\((?:"([^"]*)"|'([^']*)')\)\s*$`)

// ParseSelector translates the selector syntax shared by both drivers into a CSS or
// XPath query:
//
//	#id, css=#id           CSS
//	text=Settle            deepest element whose normalized text contains "settle", any case
//	text="Settle Cash"     deepest element whose normalized text is exactly "Settle Cash"
//	xpath=//a, //a         XPath
//	button:has-text("Go")  button element containing "go", any case
func ParseSelector(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "css="):
		q := strings.TrimSpace(s[len("css="):])
		if q == "" {
			return Selector{}, fmt.Errorf("empty css selector in %q", raw)
		}
		return Selector{Kind: SelectorCSS, Query: q}, nil

	case strings.HasPrefix(lower, "xpath="):
		q := strings.TrimSpace(s[len("xpath="):])
		if q == "" {
			return Selector{}, fmt.Errorf("empty xpath selector in %q", raw)
		}
		return Selector{Kind: SelectorXPath, Query: q}, nil

	case strings.HasPrefix(s, "//"), strings.HasPrefix(s, "(//"):
		return Selector{Kind: SelectorXPath, Query: s}, nil

	case strings.HasPrefix(lower, "text="):
		text := strings.TrimSpace(s[len("text="):])
		if exact, ok := unquote(text); ok {
			return Selector{Kind: SelectorXPath, Query: textXPath("*", exact, true)}, nil
		}
		if text == "" {
			return Selector{}, fmt.Errorf("empty text selector in %q", raw)
		}
		return Selector{Kind: SelectorXPath, Query: textXPath("*", text, false)}, nil
	}

	if m := hasTextPattern.FindStringSubmatch(s); m != nil {
		text := m[2]
		if text == "" {
			text = m[3]
		}
		return Selector{Kind: SelectorXPath, Query: textXPath(m[1], text, false)}, nil
	}

	return Selector{Kind: SelectorCSS, Query: s}, nil
}

const (
	upperASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerASCII = "abcdefghijklmnopqrstuvwxyz"
)

// textXPath matches tag elements by their whitespace-normalized text. Contains
// matches ignore ASCII case, the same as playwright's unquoted text; exact matches
// are case-sensitive. For the wildcard tag only the deepest match is kept so that
// text=Save resolves to the button rather than to the body and every other
// ancestor. Head, script and style text never match.
func textXPath(tag, text string, exact bool) string {
	normalized := strings.Join(strings.Fields(text), " ")
	var cond string
	if exact {
		cond = fmt.Sprintf("normalize-space(.)=%s", xpathLiteral(normalized))
	} else {
		cond = fmt.Sprintf("contains(translate(normalize-space(.),%q,%q),%s)",
			upperASCII, lowerASCII, xpathLiteral(asciiLower(normalized)))
	}
	if tag != "*" {
		return fmt.Sprintf("//%s[%s]", tag, cond)
	}
	return fmt.Sprintf("//body//*[not(self::script or self::style)][%s][not(.//*[%s])]", cond, cond)
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape sequences,
// so strings containing both quote kinds are assembled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}

// asciiLower lower-cases only A-Z, matching what translate() does on the page.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}
