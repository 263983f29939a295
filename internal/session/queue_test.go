package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
)

func TestQueueConcurrentEnqueueAddsOneEntry(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	q := NewQueue(store)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := q.Enqueue(ctx, "c1")
			if err != nil {
				t.Errorf("Enqueue: %v", err)
				return
			}
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
}

func TestQueuePopClearsPending(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemory())

	_, _ = q.Enqueue(ctx, "c1")

	callID, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok || callID != "c1" {
		t.Fatalf("Pop = %q, %v, %v", callID, ok, err)
	}

	added, err := q.Enqueue(ctx, "c1")
	if err != nil || !added {
		t.Fatalf("re-enqueue after pop = %v, %v", added, err)
	}
}

func TestQueuePopTimesOut(t *testing.T) {
	q := NewQueue(kv.NewMemory())

	_, ok, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("Pop on empty queue = %v, %v", ok, err)
	}
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemory())

	for _, id := range []string{"a", "b", "c"} {
		_, _ = q.Enqueue(ctx, id)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, _, _ := q.Pop(ctx, time.Second)
		if got != want {
			t.Fatalf("Pop = %q, want %q", got, want)
		}
	}
}
