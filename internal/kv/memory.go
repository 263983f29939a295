package kv

import (
	"context"
	"sync"
	"time"
)

type stringEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store. It coordinates goroutines only; use Redis
// when workers run in more than one process.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	strings map[string]stringEntry
	sets    map[string]map[string]struct{}
	lists   map[string][]string
	pushed  chan struct{}
}

type MemoryOption func(*Memory)

// WithClock replaces the clock used for key expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.strings = make(map[string]stringEntry)
	m.sets = make(map[string]map[string]struct{})
	m.lists = make(map[string][]string)
	if m.pushed == nil {
		m.pushed = make(chan struct{})
	}
}

// getLocked drops expired keys lazily.
func (m *Memory) getLocked(key string) (string, bool) {
	e, ok := m.strings[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.strings, key)
		return "", false
	}
	return e.value, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	return v, ok, nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.getLocked(key); ok {
		return false, nil
	}
	e := stringEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.strings[key] = e
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.delLocked(k)
	}
	return nil
}

func (m *Memory) delLocked(key string) {
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.lists, key)
}

func (m *Memory) SAdd(_ context.Context, set, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sets[set]
	if !ok {
		members = make(map[string]struct{})
		m.sets[set] = members
	}
	if _, exists := members[member]; exists {
		return false, nil
	}
	members[member] = struct{}{}
	return true, nil
}

func (m *Memory) SRem(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sremLocked(set, member)
	return nil
}

func (m *Memory) sremLocked(set, member string) {
	members, ok := m.sets[set]
	if !ok {
		return
	}
	delete(members, member)
	if len(members) == 0 {
		delete(m.sets, set)
	}
}

func (m *Memory) RPush(_ context.Context, key string, values ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], values...)
	n := int64(len(m.lists[key]))

	close(m.pushed)
	m.pushed = make(chan struct{})
	return n, nil
}

func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func (m *Memory) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *Memory) BLPop(ctx context.Context, timeout time.Duration, key string) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if list := m.lists[key]; len(list) > 0 {
			head := list[0]
			if len(list) == 1 {
				delete(m.lists, key)
			} else {
				m.lists[key] = list[1:]
			}
			m.mu.Unlock()
			return head, true, nil
		}
		pushed := m.pushed
		m.mu.Unlock()

		select {
		case <-pushed:
		case <-timer.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (m *Memory) Commit(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.guardKey != "" {
		if v, ok := m.getLocked(b.guardKey); !ok || v != b.guardValue {
			return ErrGuardFailed
		}
	}

	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			m.delLocked(o.key)
			m.strings[o.key] = stringEntry{value: o.value}
		case opDel:
			m.delLocked(o.key)
		case opSRem:
			m.sremLocked(o.key, o.value)
		case opLRem:
			list := m.lists[o.key]
			kept := list[:0]
			for _, v := range list {
				if v != o.value {
					kept = append(kept, v)
				}
			}
			if len(kept) == 0 {
				delete(m.lists, o.key)
			} else {
				m.lists[o.key] = kept
			}
		}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) FlushAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// Keys reports how many keys of any type are live. Intended for tests and
// diagnostics.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sets) + len(m.lists)
	for k := range m.strings {
		if _, ok := m.getLocked(k); ok {
			n++
		}
	}
	return n
}
