package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process Store backed by a map.
// Expired entries are dropped lazily by reads and by Purge.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	closed  atomic.Bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	if err := CheckPut(key, typeTag, ttl); err != nil {
		return false, err
	}
	if m.closed.Load() {
		return false, ErrClosed
	}

	// Copy so later mutation of the caller's slice cannot leak into the store
	buf := bytes.Clone(value)
	if buf == nil {
		buf = []byte{}
	}

	m.mu.Lock()
	m.entries[key] = Entry{
		Key:     key,
		TypeTag: typeTag,
		Value:   buf,
		TTL:     ttl,
		Created: m.now(),
	}
	m.mu.Unlock()
	return true, nil
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := CheckKey(key); err != nil {
		return Entry{}, false, err
	}
	if m.closed.Load() {
		return Entry{}, false, ErrClosed
	}

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if e.Expired(m.now()) {
		m.dropIfExpired(key)
		return Entry{}, false, nil
	}
	// Callers own the returned bytes
	e.Value = bytes.Clone(e.Value)
	return e, true, nil
}

func (m *Memory) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	now := m.now()

	m.mu.RLock()
	keys := make([]string, 0)
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) && !e.Expired(now) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Remove(ctx context.Context, key string) (bool, error) {
	if err := CheckKey(key); err != nil {
		return false, err
	}
	if m.closed.Load() {
		return false, ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	delete(m.entries, key)
	return !e.Expired(m.now()), nil
}

// Purge physically removes every expired entry and returns how many went.
func (m *Memory) Purge() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

// dropIfExpired re-checks under the write lock: a concurrent Put may have
// replaced the entry since the read.
func (m *Memory) dropIfExpired(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.Expired(m.now()) {
		delete(m.entries, key)
	}
}
