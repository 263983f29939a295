// Package calls is the query and control surface over live calls: reading
// a call's rolling state, finalizing it on demand and archiving it.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sjawhar/callscribe/internal/kv"
	"github.com/sjawhar/callscribe/internal/processing"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
)

var (
	ErrNotFound = processing.ErrNotFound
	// ErrInvalidRequest marks caller mistakes, reported as 400s.
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Archive is everything the service needs from the durable store.
type Archive interface {
	Recorder
	InteractionsForCustomer(ctx context.Context, customerID int64, limit int) ([]storage.Interaction, error)
	Reset(ctx context.Context) error
	ApplySeed(ctx context.Context, seed storage.Seed) error
}

type WorkerStatus interface {
	Alive() bool
}

type Summary struct {
	CallID          string              `json:"call_id"`
	RollingSummary  session.CallSummary `json:"rolling_summary"`
	HistorySummary  string              `json:"history_summary"`
	Promotions      session.Promotions  `json:"promotions"`
	ChunksProcessed int64               `json:"chunks_processed"`
}

type SaveRequest struct {
	CallID     string `json:"call_id"`
	CustomerID int64  `json:"customer_id"`
	Summary    string `json:"summary"`
}

type SaveResult struct {
	InteractionID int64  `json:"interaction_id"`
	Summary       string `json:"summary"`
}

type Health struct {
	Status      string `json:"status"`
	WorkerAlive bool   `json:"worker_alive"`
}

type Service struct {
	sessions  *session.Sessions
	finalizer *processing.Finalizer
	committer *Committer
	archive   Archive
	workers   WorkerStatus
	logger    *slog.Logger
}

func NewService(sessions *session.Sessions, finalizer *processing.Finalizer, committer *Committer, archive Archive, workers WorkerStatus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		finalizer: finalizer,
		committer: committer,
		archive:   archive,
		workers:   workers,
		logger:    logger,
	}
}

// GetSummary brings the call up to date and returns its rolling state.
func (s *Service) GetSummary(ctx context.Context, callID string) (Summary, error) {
	snap, err := s.finalizer.Finalize(ctx, callID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		CallID:          callID,
		RollingSummary:  snap.Summary,
		HistorySummary:  snap.History,
		Promotions:      snap.Promotions,
		ChunksProcessed: snap.ProcessedIndex,
	}, nil
}

// Promotions returns the current recommendations without finalizing. A call
// with none stored reports no relevant promotions.
func (s *Service) Promotions(ctx context.Context, callID string) (session.Promotions, error) {
	return s.sessions.Promotions(ctx, callID)
}

func (s *Service) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if strings.TrimSpace(req.CallID) == "" {
		return SaveResult{}, fmt.Errorf("%w: call_id is required", ErrInvalidRequest)
	}
	id, err := s.committer.Save(ctx, req.CallID, req.CustomerID, req.Summary)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{InteractionID: id, Summary: req.Summary}, nil
}

// Health reports degraded when the session store does not answer.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: StatusHealthy}
	if s.workers != nil {
		h.WorkerAlive = s.workers.Alive()
	}
	if err := s.sessions.Store().Ping(ctx); err != nil {
		s.logger.Warn("session store ping failed", "error", err)
		h.Status = StatusDegraded
	}
	return h
}

func (s *Service) Interactions(ctx context.Context, customerID int64, limit int) ([]storage.Interaction, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	return s.archive.InteractionsForCustomer(ctx, customerID, limit)
}

// Reset wipes every live call and the archive, then applies seed. It backs
// the reset-on-start option.
func Reset(ctx context.Context, store kv.Store, archive Archive, seed *storage.Seed) error {
	if err := store.FlushAll(ctx); err != nil {
		return fmt.Errorf("flush session store: %w", err)
	}
	if err := archive.Reset(ctx); err != nil {
		return fmt.Errorf("reset archive: %w", err)
	}
	if seed != nil {
		if err := archive.ApplySeed(ctx, *seed); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	}
	return nil
}
