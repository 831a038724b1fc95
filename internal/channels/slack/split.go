package slack

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitMessage breaks text into pieces of at most limit bytes, preferring
// paragraph breaks, then line breaks, then sentence ends, then spaces.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var parts []string
	remaining := text
	for len(remaining) > limit {
		idx := breakPoint(remaining, limit)
		if part := strings.TrimRightFunc(remaining[:idx], unicode.IsSpace); part != "" {
			parts = append(parts, part)
		}
		remaining = strings.TrimLeftFunc(remaining[idx:], unicode.IsSpace)
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}

func breakPoint(text string, limit int) int {
	window := text[:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}

	// Hard break, never inside a multi-byte rune.
	idx := limit
	for idx > 0 && !utf8.RuneStart(text[idx]) {
		idx--
	}
	if idx == 0 {
		return limit
	}
	return idx
}
