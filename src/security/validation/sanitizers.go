// src/security/validation/sanitizers.go
package validation

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText strips every HTML tag from user supplied free text (roster
// names, products, emails) before it is stored or echoed back.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(StripUnprintable(s))
}

// SanitizeForFormulaInjection prefixes a quote when a text cell would be read
// as a formula by Excel, LibreOffice or Sheets. Only apply it to text columns;
// numeric cells legitimately start with '-'.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if formulaInjectionPrefixRegex.MatchString(trimmed) {
		return "'" + s
	}
	return s
}

// StripUnprintable drops control characters except tab, newline and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
