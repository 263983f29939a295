// Package kv holds the shared key/value primitives that call processing
// coordinates through. Every operation is atomic on its own; Commit applies a
// Batch of writes atomically. Implementations must be safe for concurrent use
// by many goroutines and, for Redis, by many processes.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrGuardFailed is returned by Commit when the batch guard key no longer
// holds the expected value. No write in the batch has been applied.
var ErrGuardFailed = errors.New("kv: guard value mismatch")

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// SetNX sets key to value only if key is absent. A ttl <= 0 means no expiry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error

	// SAdd reports whether member was newly added to set.
	SAdd(ctx context.Context, set, member string) (bool, error)
	SRem(ctx context.Context, set, member string) error

	RPush(ctx context.Context, key string, values ...string) (int64, error)
	// LRange returns elements in [start, stop], both inclusive; stop -1 is the tail.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	// BLPop pops the head of key, waiting up to timeout for an element.
	// It returns ok=false when the wait elapsed with nothing to pop.
	BLPop(ctx context.Context, timeout time.Duration, key string) (value string, ok bool, err error)

	Commit(ctx context.Context, b *Batch) error
	Ping(ctx context.Context) error
	FlushAll(ctx context.Context) error
}

type opKind int

const (
	opSet opKind = iota
	opDel
	opSRem
	opLRem
)

type op struct {
	kind  opKind
	key   string
	value string
}

// Batch is a set of writes applied together by Store.Commit.
type Batch struct {
	guardKey   string
	guardValue string
	ops        []op
}

func NewBatch() *Batch {
	return &Batch{}
}

// Set writes a persistent string value, clearing any previous expiry.
func (b *Batch) Set(key, value string) *Batch {
	b.ops = append(b.ops, op{kind: opSet, key: key, value: value})
	return b
}

func (b *Batch) Del(keys ...string) *Batch {
	for _, k := range keys {
		b.ops = append(b.ops, op{kind: opDel, key: k})
	}
	return b
}

func (b *Batch) SRem(set, member string) *Batch {
	b.ops = append(b.ops, op{kind: opSRem, key: set, value: member})
	return b
}

// LRem removes every occurrence of value from the list at key.
func (b *Batch) LRem(key, value string) *Batch {
	b.ops = append(b.ops, op{kind: opLRem, key: key, value: value})
	return b
}

// Guard makes the commit conditional on key holding value at commit time.
func (b *Batch) Guard(key, value string) *Batch {
	b.guardKey = key
	b.guardValue = value
	return b
}

func (b *Batch) Len() int {
	return len(b.ops)
}
