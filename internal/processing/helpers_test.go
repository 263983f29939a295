package processing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
	"github.com/sjawhar/callscribe/internal/summary"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type summarizerMock struct {
	mu     sync.Mutex
	calls  int
	inputs []summary.Input
	err    error
	result func(in summary.Input) summary.Result
	// during runs inside Summarize, before it returns.
	during func(in summary.Input)

	active    map[string]int
	maxActive int
	// delay is how long each call takes unless ctx ends first; block waits
	// for ctx alone.
	delay time.Duration
	block bool
}

func (m *summarizerMock) Summarize(ctx context.Context, in summary.Input) (summary.Result, error) {
	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, in)
	if m.active == nil {
		m.active = map[string]int{}
	}
	m.active[in.CallID]++
	if m.active[in.CallID] > m.maxActive {
		m.maxActive = m.active[in.CallID]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active[in.CallID]--
		m.mu.Unlock()
	}()

	if m.block {
		<-ctx.Done()
		return summary.Result{}, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return summary.Result{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.during != nil {
		m.during(in)
	}
	if m.err != nil {
		return summary.Result{}, m.err
	}
	if m.result != nil {
		return m.result(in), nil
	}
	return summary.Result{
		CallSummary: session.CallSummary{
			Bullets:      []session.Bullet{{ClientIssue: "issue", AgentAction: "action", NextStep: "next"}},
			CRMParagraph: "Caller said: " + in.Transcript,
		},
		History:    in.History + "|" + in.Transcript,
		Promotions: session.NoPromotions(),
	}, nil
}

func (m *summarizerMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *summarizerMock) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

func (m *summarizerMock) LastInput() summary.Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[len(m.inputs)-1]
}

type archiveMock struct {
	customers  map[int64]storage.Customer
	promotions []storage.Promotion
	err        error
}

func (a *archiveMock) GetCustomer(_ context.Context, id int64) (storage.Customer, error) {
	if a.err != nil {
		return storage.Customer{}, a.err
	}
	c, ok := a.customers[id]
	if !ok {
		return storage.Customer{}, storage.ErrNotFound
	}
	return c, nil
}

func (a *archiveMock) ListPromotions(context.Context) ([]storage.Promotion, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.promotions, nil
}

type notifierMock struct {
	mu    sync.Mutex
	snaps []session.Snapshot
}

func (n *notifierMock) SummaryUpdated(snap session.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, snap)
}

type fixture struct {
	store      *kv.Memory
	sessions   *session.Sessions
	lock       *session.Lock
	queue      *session.Queue
	summarizer *summarizerMock
	archive    *archiveMock
	notifier   *notifierMock
	processor  *Processor
}

func newFixture(t *testing.T, opts ...ProcessorOption) *fixture {
	t.Helper()

	store := kv.NewMemory()
	f := &fixture{
		store:      store,
		sessions:   session.New(store),
		lock:       session.NewLock(store, 30*time.Second),
		queue:      session.NewQueue(store),
		summarizer: &summarizerMock{},
		archive:    &archiveMock{customers: map[int64]storage.Customer{}},
		notifier:   &notifierMock{},
	}
	opts = append([]ProcessorOption{WithNotifier(f.notifier)}, opts...)
	f.processor = NewProcessor(f.sessions, f.lock, f.summarizer, f.archive, discardLogger(), opts...)
	return f
}

func (f *fixture) appendChunks(t *testing.T, callID string, chunks ...string) {
	t.Helper()
	for _, c := range chunks {
		if _, err := f.sessions.AppendChunk(context.Background(), callID, c); err != nil {
			t.Fatalf("AppendChunk: %v", err)
		}
	}
}

func (f *fixture) processed(t *testing.T, callID string) int64 {
	t.Helper()
	n, err := f.sessions.ProcessedIndex(context.Background(), callID)
	if err != nil {
		t.Fatalf("ProcessedIndex: %v", err)
	}
	return n
}

func (f *fixture) lockHeld(t *testing.T, callID string) bool {
	t.Helper()
	_, held, err := f.lock.Holder(context.Background(), callID)
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	return held
}

var errProvider = errors.New("provider down")

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
