package strutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s cut to at most max runes. Invalid UTF-8 is dropped first
// so the result always survives a JSON round trip unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
