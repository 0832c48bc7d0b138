package drafter

import (
	"fmt"
	"regexp"
	"strings"
)

// Section is one heuristically detected slice of a text.
type Section struct {
	Title   string
	Content string
}

var (
	numberedRe  = regexp.MustCompile(`(?m)\d+\.[ \t]*[^\n]+`)
	headingRe   = regexp.MustCompile(`(?mi)(?:Part|Chapter|Section)[ \t]*\d+[:\s][^\n]*`)
	prefixRe    = regexp.MustCompile(`(?i)^(?:Part|Chapter|Section)[ \t]*\d+[:\s]*`)
	numPrefixRe = regexp.MustCompile(`^\d+\.[ \t]*`)
)

// SplitSections splits text into sections using numbered markers ("1. Title")
// first, then Part/Chapter/Section headings. Returns nil when neither marker
// style is present; the caller decides what a marker-free text becomes.
func SplitSections(text string) []Section {
	if s := splitBy(text, numberedRe, func(i int, title string) string {
		clean := strings.TrimSpace(numPrefixRe.ReplaceAllString(title, ""))
		if clean == "" {
			clean = fmt.Sprintf("Module %d", i+1)
		}
		return clean
	}); len(s) > 0 {
		return s
	}

	return splitBy(text, headingRe, func(i int, title string) string {
		clean := strings.TrimSpace(prefixRe.ReplaceAllString(title, ""))
		if clean == "" {
			clean = fmt.Sprintf("Module %d", i+1)
		}
		return clean
	})
}

// splitBy slices text at each match of re. The match line becomes the section
// title (via cleanTitle), the span up to the next match becomes its content.
func splitBy(text string, re *regexp.Regexp, cleanTitle func(i int, raw string) string) []Section {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(matches))
	for i, m := range matches {
		title := strings.TrimSpace(text[m[0]:m[1]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(text[m[1]:end])
		if content == "" {
			// Marker with nothing under it: the title carries the content.
			content = title
		}
		sections = append(sections, Section{
			Title:   cleanTitle(i, title),
			Content: content,
		})
	}
	return sections
}
