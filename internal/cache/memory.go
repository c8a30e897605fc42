package cache

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	entry     *Entry
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on read.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memItem
	now    func() time.Time
	closed bool
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memItem), now: time.Now}
}

// WithClock replaces the time source; used in tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

var _ Cache = (*Memory)(nil)

func (m *Memory) Get(ctx context.Context, query, rawURL string) (*Entry, error) {
	key := Key(query, rawURL)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expiresAt.Equal(it.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, nil
	}

	return it.entry.Clone(), nil
}

// Put stores a copy of e. A non-positive ttl never expires.
func (m *Memory) Put(ctx context.Context, query, rawURL string, e *Entry, ttl time.Duration) error {
	if e == nil {
		return nil
	}
	it := memItem{entry: e.Clone()}
	if it.entry.StoredAt.IsZero() {
		it.entry.StoredAt = m.now().UTC()
	}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.items[Key(query, rawURL)] = it
	return nil
}

// Len reports the number of stored entries, including unread expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	return nil
}
