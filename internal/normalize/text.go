package normalize

import (
	"html"
	"regexp"
	"strings"
)

// summaryMaxLen bounds the stored summary. The deduplication fingerprint
// hashes the summary, so this bound is also the "first ~500 chars of
// description" window.
const summaryMaxLen = 500

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (some boards double-encode; no-op on
// already-real HTML), strips all tags, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, "")
	return strings.Join(strings.Fields(plain), " ")
}

// Summarize derives the bounded plain-text summary from a raw description.
// Truncation lands on a word boundary so the result is stable regardless of
// how the source chunked its markup.
func Summarize(description string) string {
	text := extractText(description)
	if len(text) <= summaryMaxLen {
		return text
	}
	cut := strings.LastIndexByte(text[:summaryMaxLen], ' ')
	if cut <= 0 {
		cut = summaryMaxLen
	}
	return text[:cut]
}
