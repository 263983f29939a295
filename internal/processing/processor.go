// Package processing folds newly appended transcript chunks into a call's
// rolling artifacts. The same claim-and-process pass serves the background
// worker pool and the on-demand finalizer; they differ only in Policy and
// in what they do with the Outcome.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
	"github.com/sjawhar/callscribe/internal/summary"
)

const (
	unknownCustomer = "Unknown Customer"

	// FallbackParagraph replaces the CRM paragraph when the summarizer answered
	// with something unusable, so a reviewer sees the gap.
	FallbackParagraph = "[Summary unavailable for this segment: the summarizer returned malformed output.]"
)

type Outcome int

const (
	// Contended means another identity holds the call's lock.
	Contended Outcome = iota + 1
	// NoOp means every chunk was already processed.
	NoOp
	// Throttled means the call was processed too recently.
	Throttled
	Processed
	// LockLost means the lock expired and changed hands before the commit;
	// nothing was written.
	LockLost
)

func (o Outcome) String() string {
	switch o {
	case Contended:
		return "contended"
	case NoOp:
		return "noop"
	case Throttled:
		return "throttled"
	case Processed:
		return "processed"
	case LockLost:
		return "lock_lost"
	default:
		return "unknown"
	}
}

type Policy struct {
	Throttle time.Duration
	Force    bool
}

// Archive is the read side of the durable store used to build model input.
type Archive interface {
	GetCustomer(ctx context.Context, id int64) (storage.Customer, error)
	ListPromotions(ctx context.Context) ([]storage.Promotion, error)
}

type Notifier interface {
	SummaryUpdated(snap session.Snapshot)
}

type Processor struct {
	sessions   *session.Sessions
	lock       *session.Lock
	summarizer summary.Summarizer
	archive    Archive
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time

	// passTimeout bounds the summarizer call. It defaults to the lock TTL,
	// past which the commit would be rejected anyway.
	passTimeout time.Duration
}

type ProcessorOption func(*Processor)

func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) {
		p.notifier = n
	}
}

func WithPassTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.passTimeout = d
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

func NewProcessor(sessions *session.Sessions, lock *session.Lock, summarizer summary.Summarizer, archive Archive, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		sessions:   sessions,
		lock:       lock,
		summarizer: summarizer,
		archive:    archive,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.passTimeout <= 0 {
		p.passTimeout = lock.TTL()
	}
	return p
}

// Process runs one claim-and-process pass for callID as identity. The chunk
// range is fixed when the pass starts: chunks appended while the summarizer
// runs are left for the next pass. Only malformed summarizer output is
// replaced by the fallback and committed; any other summarizer failure,
// including cancellation or the pass timeout, leaves the call untouched and
// is returned as an error.
func (p *Processor) Process(ctx context.Context, callID, identity string, policy Policy) (outcome Outcome, err error) {
	acquired, err := p.lock.Acquire(ctx, callID, identity)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return Contended, nil
	}
	defer func() {
		// A lost lock belongs to someone else now.
		if outcome == LockLost {
			return
		}
		if relErr := p.lock.Release(context.WithoutCancel(ctx), callID); relErr != nil {
			p.logger.Warn("release lock failed", "call_id", callID, "identity", identity, "error", relErr)
		}
	}()

	processed, err := p.sessions.ProcessedIndex(ctx, callID)
	if err != nil {
		return 0, err
	}
	total, err := p.sessions.ChunkCount(ctx, callID)
	if err != nil {
		return 0, err
	}
	if processed >= total {
		return NoOp, nil
	}

	if !policy.Force && policy.Throttle > 0 {
		last, err := p.sessions.LastProcessedAt(ctx, callID)
		if err != nil {
			return 0, err
		}
		if !last.IsZero() && p.now().Sub(last) < policy.Throttle {
			return Throttled, nil
		}
	}

	chunks, err := p.sessions.Chunks(ctx, callID, processed, total)
	if err != nil {
		return 0, err
	}
	newCount := total - processed

	in, err := p.buildInput(ctx, callID, strings.Join(chunks, " "))
	if err != nil {
		return 0, err
	}

	sumCtx, cancel := context.WithTimeout(ctx, p.passTimeout)
	res, err := p.summarizer.Summarize(sumCtx, in)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, summary.ErrMalformedOutput):
		p.logger.Warn("summarizer output malformed, using fallback", "call_id", callID, "identity", identity, "error", err)
		res = fallbackResult(in.History)
	default:
		return 0, fmt.Errorf("summarize call %s: %w", callID, err)
	}

	update := session.Update{
		Summary:        res.CallSummary,
		History:        res.History,
		Promotions:     ValidatePromotions(res.Promotions, in.Catalog),
		ProcessedIndex: processed + newCount,
		ProcessedAt:    p.now(),
	}
	if err := p.sessions.Commit(ctx, callID, identity, update); err != nil {
		if errors.Is(err, kv.ErrGuardFailed) {
			p.logger.Warn("lock lost before commit, discarding pass", "call_id", callID, "identity", identity)
			return LockLost, nil
		}
		return 0, err
	}

	p.logger.Debug("call processed", "call_id", callID, "identity", identity, "chunks", newCount, "processed_index", update.ProcessedIndex)

	if p.notifier != nil {
		p.notifier.SummaryUpdated(session.Snapshot{
			CallID:         callID,
			Summary:        update.Summary,
			HasSummary:     true,
			History:        update.History,
			Promotions:     update.Promotions,
			ProcessedIndex: update.ProcessedIndex,
		})
	}
	return Processed, nil
}

func (p *Processor) buildInput(ctx context.Context, callID, transcript string) (summary.Input, error) {
	in := summary.Input{CallID: callID, Transcript: transcript}

	customerID, ok, err := p.sessions.Customer(ctx, callID)
	if err != nil {
		return in, err
	}
	if !ok {
		customerID = callID
	}
	in.CustomerProfile = p.profile(ctx, customerID)

	if in.History, err = p.sessions.History(ctx, callID); err != nil {
		return in, err
	}

	current, found, err := p.sessions.Summary(ctx, callID)
	if err != nil {
		return in, err
	}
	if found {
		in.CurrentSummary = summary.RenderText(current)
	}

	in.Catalog = p.catalog(ctx)
	return in, nil
}

func (p *Processor) profile(ctx context.Context, customerID string) string {
	id, err := strconv.ParseInt(customerID, 10, 64)
	if err != nil || p.archive == nil {
		return unknownCustomer
	}

	c, err := p.archive.GetCustomer(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("customer lookup failed", "customer_id", id, "error", err)
		}
		return unknownCustomer
	}
	return c.Profile()
}

func (p *Processor) catalog(ctx context.Context) []summary.CatalogEntry {
	if p.archive == nil {
		return nil
	}

	promos, err := p.archive.ListPromotions(ctx)
	if err != nil {
		p.logger.Warn("promotion catalog unavailable", "error", err)
		return nil
	}

	out := make([]summary.CatalogEntry, 0, len(promos))
	for _, promo := range promos {
		out = append(out, summary.CatalogEntry{
			PromoID:     strconv.FormatInt(promo.ID, 10),
			Name:        promo.Name,
			Description: promo.Description,
			Conditions:  promo.Conditions,
		})
	}
	return out
}

func fallbackResult(history string) summary.Result {
	return summary.Result{
		CallSummary: session.CallSummary{Bullets: []session.Bullet{}, CRMParagraph: FallbackParagraph},
		History:     history,
		Promotions:  session.NoPromotions(),
	}
}
