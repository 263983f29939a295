package processing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sjawhar/callscribe/internal/session"
)

// APIIdentity is the lock identity of on-demand finalization.
const APIIdentity = "api"

var ErrNotFound = errors.New("no summary for call")

type FinalizerConfig struct {
	Deadline     time.Duration
	PollInterval time.Duration
}

// Finalizer brings a call's rolling artifacts up to date on request,
// waiting out a worker that holds the lock, then returns them.
type Finalizer struct {
	sessions  *session.Sessions
	lock      *session.Lock
	processor *Processor
	cfg       FinalizerConfig
	logger    *slog.Logger
}

func NewFinalizer(sessions *session.Sessions, lock *session.Lock, processor *Processor, cfg FinalizerConfig, logger *slog.Logger) *Finalizer {
	if cfg.Deadline <= 0 {
		cfg.Deadline = 90 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{
		sessions:  sessions,
		lock:      lock,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Finalize processes every chunk of callID that is pending, bounded by the
// configured deadline, and returns the resulting snapshot. It returns
// ErrNotFound when the call has no summary at all.
//
// The deadline and ctx bound only the waiting. A pass that has started runs
// to completion in the background even when Finalize returns early.
func (f *Finalizer) Finalize(ctx context.Context, callID string) (session.Snapshot, error) {
	loopCtx, cancel := context.WithTimeout(ctx, f.cfg.Deadline)
	defer cancel()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := f.step(loopCtx, callID)
		if err != nil && loopCtx.Err() == nil {
			f.logger.Warn("finalize step failed, retrying", "call_id", callID, "error", err)
		}
		if done {
			break
		}

		select {
		case <-loopCtx.Done():
		case <-ticker.C:
			continue
		}
		if ctx.Err() != nil {
			return session.Snapshot{}, ctx.Err()
		}
		f.logger.Warn("finalize deadline reached, returning current state", "call_id", callID, "deadline", f.cfg.Deadline)
		break
	}

	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}
	snap, err := f.sessions.Snapshot(ctx, callID)
	if err != nil {
		return session.Snapshot{}, err
	}
	if !snap.HasSummary {
		return session.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

type passResult struct {
	outcome Outcome
	err     error
}

// step reports whether finalization is complete.
func (f *Finalizer) step(ctx context.Context, callID string) (bool, error) {
	processed, err := f.sessions.ProcessedIndex(ctx, callID)
	if err != nil {
		return false, err
	}
	total, err := f.sessions.ChunkCount(ctx, callID)
	if err != nil {
		return false, err
	}
	if processed >= total {
		return true, nil
	}

	holder, held, err := f.lock.Holder(ctx, callID)
	if err != nil {
		return false, err
	}
	if held && holder != APIIdentity {
		return false, nil
	}

	result := make(chan passResult, 1)
	go func() {
		outcome, err := f.processor.Process(context.WithoutCancel(ctx), callID, APIIdentity, Policy{Force: true})
		result <- passResult{outcome: outcome, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return false, r.err
		}
		return r.outcome == Processed || r.outcome == NoOp, nil
	case <-ctx.Done():
		f.logger.Info("stopped waiting for finalize pass, it continues in the background", "call_id", callID)
		return false, ctx.Err()
	}
}
