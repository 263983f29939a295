package summary

import (
	"context"
	"strings"

	"github.com/sjawhar/callscribe/internal/session"
)

// Stub is a deterministic Summarizer for local runs without model access.
// The paragraph echoes the new transcript and the history accumulates it.
type Stub struct{}

func (Stub) Summarize(_ context.Context, in Input) (Result, error) {
	text := strings.TrimSpace(in.Transcript)

	history := text
	if in.History != "" {
		history = strings.TrimSpace(in.History + " " + text)
	}
	if r := []rune(history); len(r) > maxSummaryText {
		history = string(r[len(r)-maxSummaryText:])
	}

	return Result{
		CallSummary: session.CallSummary{
			Bullets: []session.Bullet{{
				ClientIssue: firstWords(text, 8),
				AgentAction: "noted",
				NextStep:    "review",
			}},
			CRMParagraph: "Caller said: " + text,
		},
		History:    history,
		Promotions: session.NoPromotions(),
	}, nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
