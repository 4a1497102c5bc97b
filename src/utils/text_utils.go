package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldText lower-cases s and strips diacritics ("Cartão de Crédito" -> "cartao de credito").
func FoldText(s string) string {
	// A transformer chain keeps state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// NormalizeCNPJ keeps the digits of a tax id. Ids read from numeric spreadsheet
// cells lose their leading zeros, so 12 and 13 digit values are padded back to 14.
func NormalizeCNPJ(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if n := len(digits); n == 12 || n == 13 {
		digits = strings.Repeat("0", 14-n) + digits
	}
	return digits
}
