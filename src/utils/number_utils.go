package utils

import (
	"math"
	"strconv"
	"strings"
)

// RoundFloat rounds a float64 to a specified number of decimal places.
// Only for presentation values; money that is audited goes through shopspring/decimal.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// NormalizeDecimalString turns a Brazilian or international formatted number into
// a plain "1234.56" literal. Currency symbols, percent signs and spaces are removed.
// When both separators are present the right-most one is the decimal point.
// The boolean is false when nothing numeric is left.
func NormalizeDecimalString(s string) (string, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"'")
	cleaned = strings.NewReplacer("R$", "", "%", "", " ", "", "\u00a0", "").Replace(cleaned)
	if cleaned == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(cleaned, ".") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	if negative && !strings.HasPrefix(cleaned, "-") {
		cleaned = "-" + cleaned
	}
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return "", false
	}
	return cleaned, true
}

// ParseLocaleFloat parses a locale formatted number. ok is false for anything
// that is not a finite number.
func ParseLocaleFloat(s string) (float64, bool) {
	normalized, ok := NormalizeDecimalString(s)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
