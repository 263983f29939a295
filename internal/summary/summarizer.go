package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/callscribe/internal/config"
	"github.com/sjawhar/callscribe/internal/llm"
	"github.com/sjawhar/callscribe/internal/session"
)

type ClientFactory func(provider, model string) (llm.Client, error)

// LLMSummarizer runs the three model stages: call summary (rough pass plus
// a strict-JSON cleanup pass), client history update, and promotions.
type LLMSummarizer struct {
	client  llm.Client
	logger  *slog.Logger
	backoff []time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewLLM(cfg config.Summarization, factory ClientFactory, logger *slog.Logger) (*LLMSummarizer, error) {
	provider, model, err := llm.ParseModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	client, err := factory(provider, model)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &LLMSummarizer{
		client:  client,
		logger:  logger,
		backoff: []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second},
		sleep:   sleepContext,
	}, nil
}

func (s *LLMSummarizer) Summarize(ctx context.Context, in Input) (Result, error) {
	callSummary, err := s.summarizeCall(ctx, in)
	if err != nil {
		return Result{}, err
	}

	return Result{
		CallSummary: callSummary,
		History:     s.updateHistory(ctx, in),
		Promotions:  s.recommend(ctx, in),
	}, nil
}

func (s *LLMSummarizer) summarizeCall(ctx context.Context, in Input) (session.CallSummary, error) {
	current := in.CurrentSummary
	if current == "" {
		current = "N/A"
	}

	rough, err := s.complete(ctx, render(callSummaryTemplate, map[string]string{
		"current_summary": current,
		"transcript":      in.Transcript,
	}))
	if err != nil {
		return session.CallSummary{}, fmt.Errorf("summarize call: %w", err)
	}

	cleaned, err := s.complete(ctx, render(cleanupTemplate, map[string]string{
		"rough_summary": rough,
	}))
	if err != nil {
		return session.CallSummary{}, fmt.Errorf("clean call summary: %w", err)
	}

	var cs session.CallSummary
	if !ParseJSON(cleaned, &cs) {
		return session.CallSummary{}, ErrMalformedOutput
	}
	cs.Bullets = capBullets(cs.Bullets)
	return cs, nil
}

// updateHistory keeps the existing history whenever the model fails or
// returns nothing usable.
func (s *LLMSummarizer) updateHistory(ctx context.Context, in Input) string {
	raw, err := s.complete(ctx, render(historyTemplate, map[string]string{
		"profile":    in.CustomerProfile,
		"history":    in.History,
		"transcript": in.Transcript,
	}))
	if err != nil {
		s.logger.Warn("history update failed, keeping previous history", "call_id", in.CallID, "error", err)
		return in.History
	}

	var out struct {
		HistorySummary string `json:"history_summary"`
	}
	if !ParseJSON(raw, &out) || strings.TrimSpace(out.HistorySummary) == "" {
		return in.History
	}
	return out.HistorySummary
}

func (s *LLMSummarizer) recommend(ctx context.Context, in Input) session.Promotions {
	if len(in.Catalog) == 0 {
		return session.NoPromotions()
	}

	catalog, err := json.Marshal(in.Catalog)
	if err != nil {
		return session.NoPromotions()
	}

	raw, err := s.complete(ctx, render(promotionsTemplate, map[string]string{
		"transcript": in.Transcript,
		"profile":    in.CustomerProfile,
		"catalog":    string(catalog),
	}))
	if err != nil {
		s.logger.Warn("promotion recommendation failed", "call_id", in.CallID, "error", err)
		return session.NoPromotions()
	}

	var promos session.Promotions
	if !ParseJSON(raw, &promos) {
		return session.NoPromotions()
	}
	return promos
}

func (s *LLMSummarizer) complete(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	var lastErr error
	for attempt := range s.backoff {
		result, err := s.client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(s.backoff)-1 {
			if err := s.sleep(ctx, s.backoff[attempt]); err != nil {
				return "", fmt.Errorf("completion interrupted: %w", err)
			}
		}
	}
	return "", fmt.Errorf("completion failed after retries: %w", lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
