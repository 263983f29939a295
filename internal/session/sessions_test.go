package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
)

func TestSessionsChunkLog(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	for _, text := range []string{"Hello bank", "I need money", "Thanks"} {
		if _, err := s.AppendChunk(ctx, "c1", text); err != nil {
			t.Fatalf("AppendChunk: %v", err)
		}
	}

	n, err := s.ChunkCount(ctx, "c1")
	if err != nil || n != 3 {
		t.Fatalf("ChunkCount = %d, %v", n, err)
	}

	got, err := s.Chunks(ctx, "c1", 1, 3)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(got) != 2 || got[0] != "I need money" || got[1] != "Thanks" {
		t.Fatalf("Chunks(1,3) = %v", got)
	}

	if empty, _ := s.Chunks(ctx, "c1", 3, 3); len(empty) != 0 {
		t.Fatalf("expected empty range, got %v", empty)
	}
}

func TestSessionsCustomerFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	if ok, _ := s.SetCustomer(ctx, "c1", "9001"); !ok {
		t.Fatal("expected first SetCustomer to win")
	}
	if ok, _ := s.SetCustomer(ctx, "c1", "1234"); ok {
		t.Fatal("expected second SetCustomer to lose")
	}
	if v, _, _ := s.Customer(ctx, "c1"); v != "9001" {
		t.Fatalf("customer = %q", v)
	}
}

func TestSessionsDefaultsForUnknownCall(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	snap, err := s.Snapshot(ctx, "nope")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.HasSummary {
		t.Fatal("expected no summary")
	}
	if snap.ProcessedIndex != 0 {
		t.Fatalf("processed = %d", snap.ProcessedIndex)
	}
	if !snap.Promotions.NoRelevant || len(snap.Promotions.Recommendations) != 0 {
		t.Fatalf("promotions = %+v", snap.Promotions)
	}
	last, _ := s.LastProcessedAt(ctx, "nope")
	if !last.IsZero() {
		t.Fatalf("last processed = %v", last)
	}
}

func TestSessionsCommitRequiresLock(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := New(store)
	lock := NewLock(store, time.Minute)

	update := Update{
		Summary:        CallSummary{Bullets: []Bullet{{ClientIssue: "loan"}}, CRMParagraph: "Client asked about a loan."},
		History:        "Asked about loans.",
		Promotions:     Promotions{Recommendations: []Recommendation{{PromoID: "P1"}}},
		ProcessedIndex: 2,
		ProcessedAt:    time.Unix(1700000000, 5),
	}

	err := s.Commit(ctx, "c1", "worker-a", update)
	if !errors.Is(err, kv.ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed without lock, got %v", err)
	}

	if ok, _ := lock.Acquire(ctx, "c1", "worker-a"); !ok {
		t.Fatal("acquire failed")
	}
	if err := s.Commit(ctx, "c1", "worker-a", update); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := s.Snapshot(ctx, "c1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.HasSummary || snap.Summary.CRMParagraph != "Client asked about a loan." {
		t.Fatalf("summary = %+v", snap.Summary)
	}
	if snap.History != "Asked about loans." || snap.ProcessedIndex != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Promotions.Recommendations) != 1 || snap.Promotions.Recommendations[0].PromoID != "P1" {
		t.Fatalf("promotions = %+v", snap.Promotions)
	}
	last, _ := s.LastProcessedAt(ctx, "c1")
	if !last.Equal(time.Unix(1700000000, 5)) {
		t.Fatalf("last processed = %v", last)
	}
}

func TestSessionsSummaryKeepsNonJSONAsParagraph(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := New(store)

	if err := store.Commit(ctx, kv.NewBatch().Set(summaryKey("c1"), "plain text note")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cs, ok, err := s.Summary(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("Summary = %v, %v", ok, err)
	}
	if cs.CRMParagraph != "plain text note" || len(cs.Bullets) != 0 {
		t.Fatalf("summary = %+v", cs)
	}
}

func TestSessionsDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := New(store)
	lock := NewLock(store, time.Minute)
	queue := NewQueue(store)

	_, _ = s.AppendChunk(ctx, "c1", "Hello bank")
	_, _ = s.SetCustomer(ctx, "c1", "9001")
	_, _ = queue.Enqueue(ctx, "c1")
	_, _ = queue.Enqueue(ctx, "c2")
	_, _ = lock.Acquire(ctx, "c1", "worker-a")
	_ = s.Commit(ctx, "c1", "worker-a", Update{ProcessedIndex: 1, ProcessedAt: time.Now()})

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, held, _ := lock.Holder(ctx, "c1"); held {
		t.Fatal("lock survived delete")
	}
	if n, _ := s.ChunkCount(ctx, "c1"); n != 0 {
		t.Fatalf("chunks survived delete: %d", n)
	}
	if _, ok, _ := s.Summary(ctx, "c1"); ok {
		t.Fatal("summary survived delete")
	}
	q, _ := store.LRange(ctx, QueueKey, 0, -1)
	if len(q) != 1 || q[0] != "c2" {
		t.Fatalf("queue after delete = %v", q)
	}
	// Pending set: c2 stays, c1 is free again.
	if added, _ := store.SAdd(ctx, PendingKey, "c2"); added {
		t.Fatal("c2 should still be pending")
	}
	if added, _ := store.SAdd(ctx, PendingKey, "c1"); !added {
		t.Fatal("c1 should no longer be pending")
	}
	// Only the re-added pending set and the queue remain.
	if n := store.Keys(); n != 2 {
		t.Fatalf("live keys = %d, want 2", n)
	}
}
