package collector

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	got := Normalize(RawEntry{
		Title: "   ",
		Link:  "  https://example.com/a  ",
	}, "Example")

	want := NewsItem{
		Title:       "No title",
		Link:        "https://example.com/a",
		Summary:     "",
		Source:      "Example",
		PublishedAt: Epoch,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(NewsItem{}, "Raw")); diff != "" {
		t.Fatalf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeStripsHTMLAndCaps(t *testing.T) {
	long := "<p>" + strings.Repeat("币", 600) + "</p>"
	got := Normalize(RawEntry{Title: "t", Link: "l", Summary: long}, "s")
	if n := len([]rune(got.Summary)); n != 500 {
		t.Fatalf("summary length = %d, want 500", n)
	}

	got = Normalize(RawEntry{
		Title:   "t",
		Summary: "<div>Bitcoin <b>jumps</b>\n\n  to &amp; beyond</div><img src=\"x.png\">",
	}, "s")
	if got.Summary != "Bitcoin jumps to & beyond" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
}

func TestNormalizeFallsBackToDescription(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	got := Normalize(RawEntry{
		Title:       "t",
		Link:        "l",
		Summary:     "  ",
		Description: "content body",
		Published:   &ts,
		Native:      42,
	}, "s")
	if got.Summary != "content body" {
		t.Fatalf("summary = %q, want description fallback", got.Summary)
	}
	if !got.PublishedAt.Equal(ts) || got.PublishedAt.Location() != time.UTC {
		t.Fatalf("published = %v, want %v in UTC", got.PublishedAt, ts)
	}
	if got.Raw != 42 {
		t.Fatalf("raw entry not carried through: %v", got.Raw)
	}
}

func TestHasLink(t *testing.T) {
	if (NewsItem{Link: " \t"}).HasLink() {
		t.Fatalf("whitespace link should not count as a link")
	}
	if !(NewsItem{Link: "https://x"}).HasLink() {
		t.Fatalf("expected link")
	}
}
