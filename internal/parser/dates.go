package parser

import (
	"regexp"
	"strings"
	"time"
)

var datePatterns = []struct {
	re      *regexp.Regexp
	layouts []string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:T[\d:.]+(?:Z|[+-]\d{2}:\d{2})?)?`), []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}},
	{regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`), []string{"1/2/2006"}},
	{regexp.MustCompile(`[A-Za-z]+\.? \d{1,2}, \d{4}`), []string{"January 2, 2006", "Jan 2, 2006", "Jan. 2, 2006"}},
	{regexp.MustCompile(`\d{1,2} [A-Za-z]+ \d{4}`), []string{"2 January 2006", "2 Jan 2006"}},
}

// ParseDate parses a standalone date in any of the formats the source
// sites publish.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, p := range datePatterns {
		for _, layout := range p.layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ExtractDate finds the first parseable date embedded in free text, such as
// "Introduced: 01/03/2025 (this is the date…)".
func ExtractDate(text string) (time.Time, bool) {
	for _, p := range datePatterns {
		for _, match := range p.re.FindAllString(text, -1) {
			for _, layout := range p.layouts {
				if t, err := time.Parse(layout, match); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}
