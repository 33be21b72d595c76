package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses every run of whitespace to one space and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// FirstLine returns the first non-blank line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// CutAt drops everything from the first occurrence of marker. Pages that
// inline scripts in text containers leak "$(document)" into extracted text.
func CutAt(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Truncate caps s at n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// TruncateWords keeps the first n whitespace-separated words of s. It
// reports whether anything was dropped.
func TruncateWords(s string, n int) (string, bool) {
	words := strings.Fields(s)
	if len(words) <= n {
		return s, false
	}
	return strings.Join(words[:n], " "), true
}
