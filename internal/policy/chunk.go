package policy

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits text on blank lines. Paragraphs longer than
// maxChars are cut at whitespace.
func SplitParagraphs(text string, maxChars int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var chunks []string
	for _, paragraph := range paragraphBreak.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if maxChars < 1 || len(paragraph) <= maxChars {
			chunks = append(chunks, paragraph)
			continue
		}
		chunks = append(chunks, splitLong(paragraph, maxChars)...)
	}
	return chunks
}

func splitLong(paragraph string, maxChars int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	for _, word := range strings.Fields(paragraph) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
