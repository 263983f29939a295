package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
)

// Queue is the dispatch queue of calls with unprocessed chunks. The pending
// set keeps at most one queue entry per call.
type Queue struct {
	store kv.Store
}

func NewQueue(store kv.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue pushes callID unless it is already pending. It reports whether a
// queue entry was added.
func (q *Queue) Enqueue(ctx context.Context, callID string) (bool, error) {
	added, err := q.store.SAdd(ctx, PendingKey, callID)
	if err != nil {
		return false, fmt.Errorf("mark pending %s: %w", callID, err)
	}
	if !added {
		return false, nil
	}
	if _, err := q.store.RPush(ctx, QueueKey, callID); err != nil {
		return false, fmt.Errorf("enqueue %s: %w", callID, err)
	}
	return true, nil
}

// Pop waits up to timeout for the next call. A popped call leaves the
// pending set before it is returned, so chunks appended while it is being
// processed enqueue it again. If clearing the pending mark fails the popped
// call is still returned alongside the error.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	callID, ok, err := q.store.BLPop(ctx, timeout, QueueKey)
	if err != nil {
		return "", false, fmt.Errorf("pop queue: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	if err := q.store.SRem(ctx, PendingKey, callID); err != nil {
		return callID, true, fmt.Errorf("clear pending %s: %w", callID, err)
	}
	return callID, true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.store.LLen(ctx, QueueKey)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
