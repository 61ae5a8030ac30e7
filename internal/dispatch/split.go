package dispatch

import (
	"strings"
	"unicode/utf8"
)

// splitMessage breaks text into chunks of at most limit runes, preferring
// paragraph breaks, then line breaks, then spaces, then a hard cut.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			parts = append(parts, text)
			break
		}
		head := prefixRunes(text, limit)
		cut := lastBreak(head)
		chunk := strings.TrimSpace(text[:cut])
		if chunk != "" {
			parts = append(parts, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	return parts
}

// lastBreak returns the byte offset to cut head at.
func lastBreak(head string) int {
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(head, sep); idx > 0 {
			return idx + len(sep)
		}
	}
	return len(head)
}

func prefixRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
