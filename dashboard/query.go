package dashboard

import (
	"regexp"
	"strings"
)

// Characters that would break out of the quoted subject term.
var unsafeQueryChars = regexp.MustCompile(`["\\]`)

var spaceRun = regexp.MustCompile(`\s+`)

// sanitizeFilter drops quote and backslash characters and collapses
// whitespace so the filter can be embedded in a quoted search term.
func sanitizeFilter(filter string) string {
	s := unsafeQueryChars.ReplaceAllString(filter, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// buildQuery wraps filter as an exact-subject search term in Gmail search
// syntax, e.g. subject:"Carga dodedero".
func buildQuery(filter string) string {
	return `subject:"` + sanitizeFilter(filter) + `"`
}

// take truncates input to n runes for logging.
func take(input string, n int) string {
	runes := []rune(input)
	if len(runes) <= n {
		return input
	}
	return string(runes[:n]) + " ..."
}
