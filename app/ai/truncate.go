package ai

import (
	"regexp"
	"strings"
)

var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// TruncateAndFormat is the deterministic fallback for the enhancement
// stage: accumulate whole sentences one per line while the running total
// fits within limit-3, then hard-truncate with an ellipsis if needed.
// Lengths are counted in runes to match the platform's character limit.
func TruncateAndFormat(text string, limit int) string {
	marked := sentenceEndRe.ReplaceAllString(strings.TrimSpace(text), "$1\n")
	sentences := strings.Split(marked, "\n")

	budget := limit - 3
	var kept []string
	currentLen := 0
	for _, sentence := range sentences {
		sentenceLen := len([]rune(sentence)) + 1 // +1 for the line break
		if currentLen+sentenceLen > budget {
			break
		}
		kept = append(kept, sentence)
		currentLen += sentenceLen
	}

	result := strings.Join(kept, "\n")
	if result == "" {
		// A single over-long sentence: nothing accumulated, truncate raw.
		result = strings.TrimSpace(text)
	}
	if runes := []rune(result); len(runes) > budget {
		result = string(runes[:budget]) + "..."
	}
	return result
}
