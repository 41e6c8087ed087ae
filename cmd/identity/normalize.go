package identity

import (
	"strings"
	"unicode/utf8"
)

const maxDisplayNameRunes = 64

// NormalizeUserID trims surrounding space. User ids are opaque and case-sensitive.
func NormalizeUserID(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeDisplayName collapses inner whitespace and caps the length.
func NormalizeDisplayName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxDisplayNameRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxDisplayNameRunes])
}
