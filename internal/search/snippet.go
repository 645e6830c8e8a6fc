package search

import (
	"html"
	"strings"
	"unicode/utf8"
)

const (
	snippetBefore      = 50  // context bytes kept before the match
	snippetAfter       = 100 // context bytes kept after the match
	snippetFallbackLen = 150 // truncation cap when the query does not match
)

// Highlight extracts a context window around the first case-insensitive
// occurrence of query in text and wraps the matched span in <mark> tags.
// Every character outside the literal <mark>/</mark> tokens is HTML-escaped;
// when the query does not occur, an escaped truncated prefix is returned.
// The <mark> tags are the only unescaped markup ever emitted.
func Highlight(text, query string) string {
	if text == "" {
		return ""
	}
	if query == "" {
		return html.EscapeString(text)
	}

	loweredQuery := strings.ToLower(query)
	idx := strings.Index(strings.ToLower(text), loweredQuery)
	if idx < 0 {
		return truncateEscaped(text)
	}
	matchEnd := idx + len(loweredQuery)
	if matchEnd > len(text) {
		// Lowercasing shifted byte lengths; fall back to a plain truncation
		// rather than slice past the end.
		return truncateEscaped(text)
	}

	start := runeFloor(text, idx-snippetBefore)
	stop := runeFloor(text, matchEnd+snippetAfter)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(html.EscapeString(text[start:idx]))
	b.WriteString("<mark>")
	b.WriteString(html.EscapeString(text[idx:matchEnd]))
	b.WriteString("</mark>")
	b.WriteString(html.EscapeString(text[matchEnd:stop]))
	if stop < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

func truncateEscaped(text string) string {
	if len(text) <= snippetFallbackLen {
		return html.EscapeString(text)
	}
	return html.EscapeString(text[:runeFloor(text, snippetFallbackLen)]) + "..."
}

// runeFloor clamps i into [0, len(s)] and backs it off to a rune boundary so
// window slicing never splits a UTF-8 sequence.
func runeFloor(s string, i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
