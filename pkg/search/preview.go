package search

import "strings"

// BuildPreview cuts a window of up to maxLen runes out of stored text,
// sliding over the text and keeping the window containing the most
// query-term hits. A window that starts mid-text gets a leading
// ellipsis; one that ends early gets a trailing one. The markers count
// against maxLen, so the returned string never exceeds it.
func BuildPreview(text string, terms []string, maxLen int) string {
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}

	lower := strings.ToLower(text)
	lowerRunes := []rune(lower)

	step := maxLen / 4
	if step < 40 {
		step = 40
	}

	bestStart, bestHits := 0, -1
	for start := 0; start < len(runes); start += step {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
			start = end - maxLen
		}
		window := string(lowerRunes[start:end])
		hits := 0
		for _, term := range terms {
			hits += strings.Count(window, term)
		}
		if hits > bestHits {
			bestHits = hits
			bestStart = start
		}
		if end == len(runes) {
			break
		}
	}

	end := bestStart + maxLen
	leading := bestStart > 0
	trailing := end < len(runes)

	start, stop := bestStart, end
	if leading {
		start += 3
	}
	if trailing {
		stop -= 3
	}
	if stop <= start {
		return string(runes[:maxLen])
	}

	preview := string(runes[start:stop])
	if leading {
		preview = "..." + preview
	}
	if trailing {
		preview += "..."
	}
	return preview
}
