package calls

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sjawhar/callscribe/internal/kv"
	"github.com/sjawhar/callscribe/internal/resilience"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
)

// cancelingRecorder records the interaction, then cancels the request the
// way a disconnecting client would.
type cancelingRecorder struct {
	Recorder
	cancel context.CancelFunc
}

func (r cancelingRecorder) RecordInteraction(ctx context.Context, customerID int64, kind, text string) (int64, error) {
	id, err := r.Recorder.RecordInteraction(ctx, customerID, kind, text)
	r.cancel()
	return id, err
}

func TestSave_CleanupSurvivesCallerCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kv.NewRedisFromClient(client)

	archive, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = archive.Close() })
	if err := archive.UpsertCustomer(context.Background(), storage.Customer{ID: 9001, FirstName: "John", LastName: "Smith"}); err != nil {
		t.Fatalf("UpsertCustomer failed: %v", err)
	}

	sessions := session.New(store)
	queue := session.NewQueue(store)
	const callID = "call_abc_123"
	if _, err := sessions.AppendChunk(context.Background(), callID, "Hello bank"); err != nil {
		t.Fatalf("AppendChunk failed: %v", err)
	}
	if _, err := queue.Enqueue(context.Background(), callID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	committer := NewCommitter(sessions, cancelingRecorder{Recorder: archive, cancel: cancel}, discardLogger(),
		WithRetryPolicy(resilience.NewRetryPolicy(2, 5*time.Millisecond)))

	id, err := committer.Save(ctx, callID, 9001, "Client asked for a loan.")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected interaction id, got %d", id)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected every call key removed, got %v", keys)
	}
}
