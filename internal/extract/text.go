package extract

import (
	"regexp"
	"strings"
)

var (
	spaceRuns     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
	lineSpace     = regexp.MustCompile(` *\n *`)
)

// cleanText collapses whitespace runs to single spaces and squeezes
// consecutive blank lines down to one.
func cleanText(s string) string {
	s = spaceRuns.ReplaceAllString(s, " ")
	s = lineSpace.ReplaceAllString(s, "\n")
	s = blankLineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// cleanInline is cleanText for single-line fields such as titles.
func cleanInline(s string) string {
	return strings.TrimSpace(spaceRuns.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}
