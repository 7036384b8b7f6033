package extractor

import (
	"strings"
	"unicode/utf8"
)

// Normalize collapses every run of whitespace, newlines included, into a
// single space and trims both ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CharCount is the length reported in page diagnostics, in characters.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}
