package ai

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	scoreRe      = regexp.MustCompile(`(?i)SCORE:\s*(\d+(?:\.\d+)?)/10`)
	suggestionRe = regexp.MustCompile(`(?i)SUGGESTION:\s*(.+)`)
)

// Assessor scores the block risk of a candidate text. The stage is
// advisory: a response that cannot be parsed yields the midpoint score,
// neither approving nor rejecting on its own.
type Assessor struct {
	gen      Generator
	attempts int

	Sleep func(time.Duration)
}

func NewAssessor(gen Generator, attempts int) *Assessor {
	return &Assessor{gen: gen, attempts: attempts, Sleep: time.Sleep}
}

// Assess returns a score in [0,10] and an optional fix suggestion.
func (a *Assessor) Assess(ctx context.Context, text string) (float64, string) {
	if !a.gen.Enabled() {
		return 0.0, "AI unavailable"
	}

	prompt := riskPrompt(text)

	for attempt := 0; attempt < a.attempts; attempt++ {
		response, err := a.gen.Generate(ctx, prompt)
		if err != nil {
			slog.Warn("Risk assessment attempt failed", "attempt", attempt+1, "error", err)
			a.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
			continue
		}

		score, suggestion := parseAssessment(response)
		slog.Info("Risk assessment", "score", score, "suggestion", suggestion)
		return score, suggestion
	}

	return 5.0, "Assessment failed"
}

func parseAssessment(response string) (float64, string) {
	m := scoreRe.FindStringSubmatch(response)
	if m == nil {
		return 5.0, "Assessment failed"
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 5.0, "Assessment failed"
	}

	suggestion := "None"
	if sm := suggestionRe.FindStringSubmatch(response); sm != nil {
		suggestion = strings.TrimSpace(sm[1])
	}
	return score, suggestion
}
