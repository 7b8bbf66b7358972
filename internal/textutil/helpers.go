package textutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns the first n characters of s. It counts runes, not bytes,
// so multi-byte text is never cut mid-character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
