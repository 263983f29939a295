package ingest

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleTimerFiresAfterSilence(t *testing.T) {
	done := make(chan struct{}, 1)
	timer := newIdleTimer(30*time.Millisecond, func() { done <- struct{}{} })

	timer.Touch()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected idle callback to fire")
	}
}

func TestIdleTimerTouchResets(t *testing.T) {
	var fired atomic.Int32
	timer := newIdleTimer(80*time.Millisecond, func() { fired.Add(1) })

	timer.Touch()
	time.Sleep(40 * time.Millisecond)
	timer.Touch()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected no callback while audio keeps arriving, got %d", fired.Load())
	}
	timer.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected stop to cancel the callback, got %d", fired.Load())
	}
}

func TestIdleTimerDisabled(t *testing.T) {
	var fired atomic.Int32
	timer := newIdleTimer(0, func() { fired.Add(1) })
	timer.Touch()
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("disabled timer must not fire")
	}
}
