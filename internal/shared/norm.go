package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// NormKey produces the canonical lookup key for a master-data name:
// case-folded, inner whitespace collapsed, digits normalised to ASCII.
func NormKey(s string) string {
	s = ASCIIDigits(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return foldCaser.String(s)
}

// ASCIIDigits maps Arabic-Indic and Extended Arabic-Indic digits to their
// ASCII equivalents. Other runes pass through unchanged.
func ASCIIDigits(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩': // ٠..٩
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹': // ۰..۹
			b.WriteRune('0' + (r - '۰'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
