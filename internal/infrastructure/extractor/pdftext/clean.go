package pdftext

import (
	"regexp"
	"strings"
)

var (
	lonePageNumber = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]*\r?$`)
	pageOfPages    = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Clean strips pagination noise and flattens whitespace. Lone page-number
// lines are only recognizable while the extractor's line breaks survive, so
// they go first. The remaining rules repeat until nothing changes, which keeps
// Clean(Clean(s)) == Clean(s).
//
// Page numbers in other conventions ("p. 3", roman numerals) pass through.
func Clean(raw string) string {
	text := raw
	for {
		next := lonePageNumber.ReplaceAllString(text, "")
		next = pageOfPages.ReplaceAllString(next, " ")
		next = whitespaceRun.ReplaceAllString(next, " ")
		next = strings.TrimSpace(next)
		if next == text {
			return next
		}
		text = next
	}
}
