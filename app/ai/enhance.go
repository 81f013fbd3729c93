package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Generator is the capability the enhancement and risk stages consume.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

const minEnhancedLen = 10

type Enhancer struct {
	gen       Generator
	charLimit int
	attempts  int

	// Sleep is swappable in tests to avoid real backoff delays.
	Sleep func(time.Duration)
}

func NewEnhancer(gen Generator, charLimit, attempts int) *Enhancer {
	return &Enhancer{
		gen:       gen,
		charLimit: charLimit,
		attempts:  attempts,
		Sleep:     time.Sleep,
	}
}

// Enhance rewrites text with the generative service, falling back to
// TruncateAndFormat when the service is unavailable or every attempt
// produces invalid output. The second return value reports whether the
// returned text actually came from the service.
func (e *Enhancer) Enhance(ctx context.Context, text string) (string, bool) {
	if !e.gen.Enabled() {
		slog.Warn("Generative service unavailable, truncating original")
		return TruncateAndFormat(text, e.charLimit), false
	}

	prompt := enhancePrompt(text, e.charLimit-30)

	for attempt := 0; attempt < e.attempts; attempt++ {
		enhanced, err := e.gen.Generate(ctx, prompt)
		if err != nil {
			slog.Warn("Enhancement attempt failed", "attempt", attempt+1, "error", err)
			e.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
			continue
		}

		if e.valid(text, enhanced) {
			slog.Info("Enhancement successful", "attempt", attempt+1, "length", utf8.RuneCountInString(enhanced))
			return enhanced, true
		}
		slog.Warn("Enhancement output invalid", "attempt", attempt+1, "length", utf8.RuneCountInString(enhanced))
	}

	slog.Info("Enhancement exhausted attempts, falling back to truncation")
	return TruncateAndFormat(text, e.charLimit), false
}

// valid accepts a candidate only if it fits under the platform limit, is
// long enough to be a real sentence, and actually differs from the input.
func (e *Enhancer) valid(original, enhanced string) bool {
	length := utf8.RuneCountInString(enhanced)
	return length < e.charLimit && length > minEnhancedLen && !strings.EqualFold(original, enhanced)
}
