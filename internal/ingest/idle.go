package ingest

import (
	"sync"
	"time"
)

// idleTimer calls onIdle once audio has been quiet for timeout. A zero
// timeout disables it.
type idleTimer struct {
	timeout time.Duration
	onIdle  func()

	mu    sync.Mutex
	timer *time.Timer
}

func newIdleTimer(timeout time.Duration, onIdle func()) *idleTimer {
	return &idleTimer{timeout: timeout, onIdle: onIdle}
}

// Touch restarts the silence countdown.
func (t *idleTimer) Touch() {
	if t.timeout <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()

		t.onIdle()
	})
}

func (t *idleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
