package search

import (
	"strings"
	"testing"
)

func TestHighlightEscapesScriptTags(t *testing.T) {
	text := `before <script>alert(1)</script> after`
	got := Highlight(text, "alert")

	if strings.Contains(got, "<script>") {
		t.Fatalf("unescaped script tag in snippet: %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("expected escaped script tag in snippet: %q", got)
	}
	if strings.Count(got, "<mark>") != 1 || strings.Count(got, "</mark>") != 1 {
		t.Fatalf("expected exactly one mark pair: %q", got)
	}
	if !strings.Contains(got, "<mark>alert</mark>") {
		t.Fatalf("expected marked match: %q", got)
	}
}

func TestHighlightNoMatchHasNoMark(t *testing.T) {
	got := Highlight(`<b>plain text</b>`, "absent")
	if strings.Contains(got, "<mark>") {
		t.Fatalf("no-match snippet must not contain mark: %q", got)
	}
	if got != "&lt;b&gt;plain text&lt;/b&gt;" {
		t.Fatalf("unexpected escaping: %q", got)
	}
}

func TestHighlightNoMatchTruncatesAt150(t *testing.T) {
	text := strings.Repeat("a", 200)
	got := Highlight(text, "zzz")
	want := strings.Repeat("a", 150) + "..."
	if got != want {
		t.Fatalf("expected %d-char truncation, got %q", 150, got)
	}
}

func TestHighlightWindowClipping(t *testing.T) {
	text := strings.Repeat("a", 60) + "needle" + strings.Repeat("b", 120)
	got := Highlight(text, "needle")

	want := "..." + strings.Repeat("a", 50) + "<mark>needle</mark>" + strings.Repeat("b", 100) + "..."
	if got != want {
		t.Fatalf("window mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestHighlightMatchAtStartHasNoLeadingEllipsis(t *testing.T) {
	got := Highlight("needle in a haystack", "needle")
	if strings.HasPrefix(got, "...") {
		t.Fatalf("unexpected leading ellipsis: %q", got)
	}
	if !strings.HasPrefix(got, "<mark>needle</mark>") {
		t.Fatalf("expected match at start: %q", got)
	}
}

func TestHighlightCaseInsensitiveMatch(t *testing.T) {
	got := Highlight("Model Drift Report", "DRIFT")
	if !strings.Contains(got, "<mark>Drift</mark>") {
		t.Fatalf("expected original-case match span: %q", got)
	}
}

func TestHighlightEmptyInputs(t *testing.T) {
	if got := Highlight("", "query"); got != "" {
		t.Fatalf("empty text: expected empty, got %q", got)
	}
	if got := Highlight("a & b", ""); got != "a &amp; b" {
		t.Fatalf("empty query: expected escaped text, got %q", got)
	}
}

func TestHighlightEscapesAroundMatch(t *testing.T) {
	got := Highlight(`x="1" & y='2' needle z`, "needle")
	for _, escaped := range []string{"&#34;", "&amp;", "&#39;"} {
		if !strings.Contains(got, escaped) {
			t.Fatalf("expected %s in snippet: %q", escaped, got)
		}
	}
}
