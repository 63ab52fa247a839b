package search

import (
	"strings"
	"testing"
)

func TestBuildPreview_ShortTextReturnedWhole(t *testing.T) {
	got := BuildPreview("short text", []string{"text"}, 260)
	if got != "short text" {
		t.Errorf("BuildPreview = %q, want unchanged text", got)
	}
}

func TestBuildPreview_LengthBounded(t *testing.T) {
	text := strings.Repeat("filler ", 200)
	got := BuildPreview(text, []string{"filler"}, 100)
	// Ellipsis markers count against the budget.
	if n := len([]rune(got)); n > 100 {
		t.Errorf("preview length = %d runes, want <= 100", n)
	}
}

func TestBuildPreview_EllipsesInsideBudget(t *testing.T) {
	// A mid-text window carries both markers and still fits maxLen.
	text := strings.Repeat("padding ", 100) + "needle" + strings.Repeat(" padding", 100)
	got := BuildPreview(text, []string{"needle"}, 80)

	if n := len([]rune(got)); n > 80 {
		t.Errorf("preview length = %d runes, want <= 80", n)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("mid-text window should carry both markers: %q", got)
	}
}

func TestBuildPreview_WindowCoversTermHits(t *testing.T) {
	text := strings.Repeat("padding ", 100) + "the needle term appears here" + strings.Repeat(" trailing", 50)
	got := BuildPreview(text, []string{"needle"}, 120)

	if !strings.Contains(got, "needle") {
		t.Errorf("preview %q does not contain the query term", got)
	}
	if !strings.HasPrefix(got, "...") {
		t.Errorf("mid-text window should carry a leading ellipsis: %q", got)
	}
}

func TestBuildPreview_TrailingEllipsis(t *testing.T) {
	text := "match at the very start " + strings.Repeat("x", 500)
	got := BuildPreview(text, []string{"match"}, 60)

	if !strings.HasPrefix(got, "match") {
		t.Errorf("window should start at text start: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated tail should carry a trailing ellipsis: %q", got)
	}
}

func TestBuildPreview_NoTermsFallsBackToHead(t *testing.T) {
	text := strings.Repeat("a", 50) + strings.Repeat("b", 500)
	got := BuildPreview(text, nil, 50)
	if !strings.HasPrefix(got, "aaaa") {
		t.Errorf("want head window when no terms hit, got %q", got)
	}
}

func TestBuildPreview_ZeroMaxLenDisablesWindowing(t *testing.T) {
	text := strings.Repeat("z", 400)
	if got := BuildPreview(text, []string{"z"}, 0); got != text {
		t.Errorf("maxLen 0 should return stored text unchanged")
	}
}
