package wallet

import (
	"slices"
	"strings"
)

// sameName compares account holder names ignoring case, punctuation and
// word order.
func sameName(a, b string) bool {
	return normalizeName(a) == normalizeName(b)
}

func normalizeName(s string) string {
	words := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	slices.Sort(words)
	return strings.Join(words, " ")
}
