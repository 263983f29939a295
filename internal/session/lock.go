package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sjawhar/callscribe/internal/kv"
)

const DefaultLockTTL = 30 * time.Second

// Lock grants exclusive, TTL-bounded ownership of a call's processing. The
// TTL is the only crash recovery: a lock whose holder died becomes
// acquirable once it expires.
type Lock struct {
	store kv.Store
	ttl   time.Duration
}

func NewLock(store kv.Store, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Lock{store: store, ttl: ttl}
}

func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// Acquire never blocks. It reports false when another identity holds the lock.
func (l *Lock) Acquire(ctx context.Context, callID, identity string) (bool, error) {
	ok, err := l.store.SetNX(ctx, lockKey(callID), identity, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", callID, err)
	}
	return ok, nil
}

// Release deletes the lock regardless of who holds it.
func (l *Lock) Release(ctx context.Context, callID string) error {
	if err := l.store.Del(ctx, lockKey(callID)); err != nil {
		return fmt.Errorf("release lock %s: %w", callID, err)
	}
	return nil
}

func (l *Lock) Holder(ctx context.Context, callID string) (string, bool, error) {
	v, ok, err := l.store.Get(ctx, lockKey(callID))
	if err != nil {
		return "", false, fmt.Errorf("lock holder %s: %w", callID, err)
	}
	return v, ok, nil
}
