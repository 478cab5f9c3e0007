package discord

import "strings"

// MaxMessageLength is the Discord limit on message content, in characters
const MaxMessageLength = 2000

// SplitMessage splits text into chunks of at most limit runes. A chunk ends
// at the last newline in its window when one exists in the second half of
// the window; otherwise it is cut at the limit.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if idx := strings.LastIndex(window, "\n"); idx >= 0 {
			if at := len([]rune(window[:idx])); at >= limit/2 {
				cut = at + 1
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
