// Package session is the typed view of per-call state held in the shared
// key/value store: the chunk log, the processing cursor, the rolling
// artifacts, the per-call lock and the dispatch queue.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
)

type Sessions struct {
	store kv.Store
}

func New(store kv.Store) *Sessions {
	return &Sessions{store: store}
}

func (s *Sessions) Store() kv.Store {
	return s.store
}

// AppendChunk adds one transcript chunk to the end of the call's chunk log
// and returns the new log length.
func (s *Sessions) AppendChunk(ctx context.Context, callID, text string) (int64, error) {
	n, err := s.store.RPush(ctx, chunksKey(callID), text)
	if err != nil {
		return 0, fmt.Errorf("append chunk: %w", err)
	}
	return n, nil
}

// SetCustomer associates customerID with the call. The first write wins.
func (s *Sessions) SetCustomer(ctx context.Context, callID, customerID string) (bool, error) {
	ok, err := s.store.SetNX(ctx, customerKey(callID), customerID, 0)
	if err != nil {
		return false, fmt.Errorf("set customer: %w", err)
	}
	return ok, nil
}

func (s *Sessions) Customer(ctx context.Context, callID string) (string, bool, error) {
	v, ok, err := s.store.Get(ctx, customerKey(callID))
	if err != nil {
		return "", false, fmt.Errorf("get customer: %w", err)
	}
	return v, ok, nil
}

func (s *Sessions) ChunkCount(ctx context.Context, callID string) (int64, error) {
	n, err := s.store.LLen(ctx, chunksKey(callID))
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Chunks returns the chunks in the half-open range [from, to).
func (s *Sessions) Chunks(ctx context.Context, callID string, from, to int64) ([]string, error) {
	if to <= from {
		return []string{}, nil
	}
	vals, err := s.store.LRange(ctx, chunksKey(callID), from, to-1)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return vals, nil
}

// ProcessedIndex returns the number of chunks already folded into the
// rolling artifacts. An absent cursor is zero.
func (s *Sessions) ProcessedIndex(ctx context.Context, callID string) (int64, error) {
	v, ok, err := s.store.Get(ctx, processedKey(callID))
	if err != nil {
		return 0, fmt.Errorf("get processed index: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse processed index %q: %w", v, ErrCorruptValue)
	}
	return n, nil
}

// LastProcessedAt returns the time of the last committed pass, or the zero
// time if the call has never been processed.
func (s *Sessions) LastProcessedAt(ctx context.Context, callID string) (time.Time, error) {
	v, ok, err := s.store.Get(ctx, lastSummaryKey(callID))
	if err != nil {
		return time.Time{}, fmt.Errorf("get last processed time: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}
	nanos, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos), nil
}

// Summary returns the rolling call summary. A stored value that is not JSON
// is surfaced as the paragraph so a hand-edited value is never lost.
func (s *Sessions) Summary(ctx context.Context, callID string) (CallSummary, bool, error) {
	v, ok, err := s.store.Get(ctx, summaryKey(callID))
	if err != nil {
		return CallSummary{}, false, fmt.Errorf("get summary: %w", err)
	}
	if !ok || v == "" {
		return CallSummary{}, false, nil
	}
	var cs CallSummary
	if err := json.Unmarshal([]byte(v), &cs); err != nil {
		return CallSummary{Bullets: []Bullet{}, CRMParagraph: v}, true, nil
	}
	if cs.Bullets == nil {
		cs.Bullets = []Bullet{}
	}
	return cs, true, nil
}

func (s *Sessions) History(ctx context.Context, callID string) (string, error) {
	v, _, err := s.store.Get(ctx, historyKey(callID))
	if err != nil {
		return "", fmt.Errorf("get history: %w", err)
	}
	return v, nil
}

// Promotions returns the rolling recommendations, or NoPromotions when none
// are stored or the stored value cannot be decoded.
func (s *Sessions) Promotions(ctx context.Context, callID string) (Promotions, error) {
	v, ok, err := s.store.Get(ctx, promotionsKey(callID))
	if err != nil {
		return Promotions{}, fmt.Errorf("get promotions: %w", err)
	}
	if !ok || v == "" {
		return NoPromotions(), nil
	}
	var p Promotions
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return NoPromotions(), nil
	}
	if p.Recommendations == nil {
		p.Recommendations = []Recommendation{}
	}
	return p, nil
}

func (s *Sessions) Snapshot(ctx context.Context, callID string) (Snapshot, error) {
	snap := Snapshot{CallID: callID}
	var err error

	if snap.Summary, snap.HasSummary, err = s.Summary(ctx, callID); err != nil {
		return Snapshot{}, err
	}
	if snap.History, err = s.History(ctx, callID); err != nil {
		return Snapshot{}, err
	}
	if snap.Promotions, err = s.Promotions(ctx, callID); err != nil {
		return Snapshot{}, err
	}
	if snap.ProcessedIndex, err = s.ProcessedIndex(ctx, callID); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Commit writes the result of a processing pass in one atomic step, provided
// identity still holds the call's lock. It returns kv.ErrGuardFailed when
// the lock was lost.
func (s *Sessions) Commit(ctx context.Context, callID, identity string, u Update) error {
	summary := u.Summary
	if summary.Bullets == nil {
		summary.Bullets = []Bullet{}
	}
	promos := u.Promotions
	if promos.Recommendations == nil {
		promos.Recommendations = []Recommendation{}
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	promosJSON, err := json.Marshal(promos)
	if err != nil {
		return fmt.Errorf("encode promotions: %w", err)
	}

	b := kv.NewBatch().
		Guard(lockKey(callID), identity).
		Set(summaryKey(callID), string(summaryJSON)).
		Set(historyKey(callID), u.History).
		Set(promotionsKey(callID), string(promosJSON)).
		Set(processedKey(callID), strconv.FormatInt(u.ProcessedIndex, 10)).
		Set(lastSummaryKey(callID), strconv.FormatInt(u.ProcessedAt.UnixNano(), 10))

	if err := s.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit pass: %w", err)
	}
	return nil
}

// Delete removes every trace of the call in one atomic step: all session
// keys, the lock, pending-set membership and any dispatch queue entries.
func (s *Sessions) Delete(ctx context.Context, callID string) error {
	b := kv.NewBatch().
		Del(callKeys(callID)...).
		SRem(PendingKey, callID).
		LRem(QueueKey, callID)
	if err := s.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("delete call: %w", err)
	}
	return nil
}
