package processing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/callscribe/internal/session"
)

type PoolConfig struct {
	Workers        int
	Throttle       time.Duration
	PopTimeout     time.Duration
	RequeueBackoff time.Duration
}

// Pool runs worker loops that pop calls from the dispatch queue and run a
// throttled pass on each. Every worker has its own lock identity.
type Pool struct {
	queue     *session.Queue
	processor *Processor
	cfg       PoolConfig
	logger    *slog.Logger
	instance  string

	cancel context.CancelFunc
	wg     sync.WaitGroup
	alive  atomic.Int32
}

func NewPool(queue *session.Queue, processor *Processor, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.RequeueBackoff <= 0 {
		cfg.RequeueBackoff = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		instance:  uuid.NewString()[:8],
	}
}

// Start launches the worker loops. They stop once ctx is canceled or Stop is
// called, each after its current pop returns and its in-flight pass finishes.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		identity := fmt.Sprintf("worker-%s-%d", p.instance, i)
		p.wg.Add(1)
		p.alive.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.alive.Add(-1)
			p.run(ctx, identity)
		}()
	}
	p.logger.Info("worker pool started", "workers", p.cfg.Workers, "instance", p.instance)
}

// Alive reports whether at least one worker loop is running.
func (p *Pool) Alive() bool {
	return p.alive.Load() > 0
}

// Stop cancels the workers and waits up to timeout for them to exit. It
// reports whether they all exited in time.
func (p *Pool) Stop(timeout time.Duration) bool {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.logger.Warn("worker pool did not stop in time", "timeout", timeout, "alive", p.alive.Load())
		return false
	}
}

func (p *Pool) run(ctx context.Context, identity string) {
	logger := p.logger.With("identity", identity)

	for ctx.Err() == nil {
		// The pop itself is bounded; letting it finish avoids dropping a call
		// the store already handed out.
		callID, ok, err := p.queue.Pop(context.WithoutCancel(ctx), p.cfg.PopTimeout)
		if err != nil {
			logger.Warn("queue pop failed", "error", err)
			if !ok {
				p.pause(ctx)
				continue
			}
		}
		if !ok {
			continue
		}

		p.handle(ctx, logger, callID, identity)
	}
}

func (p *Pool) handle(ctx context.Context, logger *slog.Logger, callID, identity string) {
	outcome, err := p.processor.Process(context.WithoutCancel(ctx), callID, identity, Policy{Throttle: p.cfg.Throttle})
	if err != nil {
		logger.Warn("process call failed", "call_id", callID, "error", err)
		p.requeueLater(ctx, logger, callID)
		return
	}

	switch outcome {
	case Processed:
		logger.Info("call processed", "call_id", callID)
	case NoOp:
		logger.Debug("nothing to process", "call_id", callID)
	case Throttled, Contended:
		logger.Debug("call deferred", "call_id", callID, "outcome", outcome.String())
		p.requeueLater(ctx, logger, callID)
	case LockLost:
		logger.Warn("lock lost during pass", "call_id", callID)
		p.requeueLater(ctx, logger, callID)
	}
}

// requeueLater puts callID back on the queue after the requeue backoff. The
// call is requeued even when shutdown interrupts the wait.
func (p *Pool) requeueLater(ctx context.Context, logger *slog.Logger, callID string) {
	p.pause(ctx)
	if _, err := p.queue.Enqueue(context.WithoutCancel(ctx), callID); err != nil {
		logger.Warn("requeue failed", "call_id", callID, "error", err)
	}
}

func (p *Pool) pause(ctx context.Context) {
	timer := time.NewTimer(p.cfg.RequeueBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
