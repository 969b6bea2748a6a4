// File: internal/browser/selector_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		kind     SelectorKind
		expected string
	}{
		{"plain css", "#settle-amount", SelectorCSS, "#settle-amount"},
		{"attribute css", `div[role="dialog"]`, SelectorCSS, `div[role="dialog"]`},
		{"css prefix", "css=button.primary", SelectorCSS, "button.primary"},
		{"xpath prefix", "xpath=//button[1]", SelectorXPath, "//button[1]"},
		{"bare xpath", "//div[@role='dialog']", SelectorXPath, "//div[@role='dialog']"},
		{"grouped xpath", "(//button)[2]", SelectorXPath, "(//button)[2]"},
		{
			"text contains",
			"text=Settle Change",
			SelectorXPath,
			`//body//*[not(self::script or self::style)][contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"settle change")][not(.//*[contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"settle change")])]`,
		},
		{
			"text exact",
			`text="Settle Cash"`,
			SelectorXPath,
			`//body//*[not(self::script or self::style)][normalize-space(.)="Settle Cash"][not(.//*[normalize-space(.)="Settle Cash"])]`,
		},
		{
			"text whitespace is normalized",
			"text=  Settle    Cash ",
			SelectorXPath,
			`//body//*[not(self::script or self::style)][contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"settle cash")][not(.//*[contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"settle cash")])]`,
		},
		{"has-text double quotes", `button:has-text("Settle Cash")`, SelectorXPath, `//button[contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"settle cash")]`},
		{"has-text single quotes", `a:has-text('Orders')`, SelectorXPath, `//a[contains(translate(normalize-space(.),"ABCDEFGHIJKLMNOPQRSTUVWXYZ","abcdefghijklmnopqrstuvwxyz"),"orders")]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := ParseSelector(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, sel.Kind)
			assert.Equal(t, tc.expected, sel.Query)
		})
	}
}

func TestParseSelector_Errors(t *testing.T) {
	for _, raw := range []string{"", "   ", "css=", "xpath=", "text="} {
		_, err := ParseSelector(raw)
		assert.Error(t, err, "selector %q should be rejected", raw)
	}
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"', "")`, xpathLiteral(`it's "quoted"`))
}

func TestParseSelector_TextIgnoresCase(t *testing.T) {
	lower, err := ParseSelector("text=settle cash")
	require.NoError(t, err)
	upper, err := ParseSelector("text=SETTLE Cash")
	require.NoError(t, err)
	assert.Equal(t, lower.Query, upper.Query)

	a, err := ParseSelector(`button:has-text("ORDERS")`)
	require.NoError(t, err)
	b, err := ParseSelector(`button:has-text("orders")`)
	require.NoError(t, err)
	assert.Equal(t, a.Query, b.Query)

	exactLower, err := ParseSelector(`text="settle cash"`)
	require.NoError(t, err)
	exactUpper, err := ParseSelector(`text="Settle Cash"`)
	require.NoError(t, err)
	assert.NotEqual(t, exactLower.Query, exactUpper.Query, "quoted text stays case-sensitive")
}

func TestASCIILower(t *testing.T) {
	assert.Equal(t, "settle café", asciiLower("SETTLE Café"))
	assert.Equal(t, "Éclair", asciiLower("ÉCLAIR"), "only A-Z are folded, as translate() does")
}
