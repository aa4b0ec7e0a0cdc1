package label

import "strings"

const ellipsis = "..."

// Measurer returns the rendered width of s in pixels (or dots).
type Measurer func(s string) int

// WrapText greedily packs words into lines no wider than maxWidth.
//
// A word wider than maxWidth is split character by character. When maxLines > 0
// and the text needs more lines, the rest is dropped and the last kept line is
// shortened until line+"..." fits. The second result reports that truncation.
func WrapText(text string, maxWidth, maxLines int, measure Measurer) ([]string, bool) {
	var lines []string
	current := ""

	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}

		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		if measure(word) <= maxWidth {
			current = word
			continue
		}

		pieces := splitWord(word, maxWidth, measure)
		lines = append(lines, pieces[:len(pieces)-1]...)
		current = pieces[len(pieces)-1]
	}
	if current != "" {
		lines = append(lines, current)
	}

	if maxLines <= 0 || len(lines) <= maxLines {
		return lines, false
	}

	lines = lines[:maxLines]
	lines[maxLines-1] = truncateWithEllipsis(lines[maxLines-1], maxWidth, measure)
	return lines, true
}

// splitWord hard-splits a single over-wide word. Every piece holds at least one rune.
func splitWord(word string, maxWidth int, measure Measurer) []string {
	var pieces []string
	piece := ""
	for _, r := range word {
		candidate := piece + string(r)
		if piece != "" && measure(candidate) > maxWidth {
			pieces = append(pieces, piece)
			piece = string(r)
			continue
		}
		piece = candidate
	}
	if piece != "" {
		pieces = append(pieces, piece)
	}
	return pieces
}

func truncateWithEllipsis(line string, maxWidth int, measure Measurer) string {
	runes := []rune(line)
	for len(runes) > 0 && measure(string(runes)+ellipsis) > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + ellipsis
}
