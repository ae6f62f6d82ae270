package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeForMatch case folds a string, replaces punctuation and symbols
// with spaces and collapses whitespace, it is the form strings are
// compared in when fuzzy matching titles and authors.
func NormalizeForMatch(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContainsAnyFold reports whether `text` contains any of `markers`,
// ignoring case. empty markers never match.
func ContainsAnyFold(text string, markers []string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}
