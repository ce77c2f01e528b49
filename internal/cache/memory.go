package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process cache. Expired entries are dropped lazily on read
// and during sweeps triggered by Set.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]entry
	generations map[string]int64
	now         func() time.Time
	lastSweep   time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string]entry),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

// Get returns a cached, unexpired value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value for ttl. A zero ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := entry{value: value}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[key] = e

	if now.Sub(m.lastSweep) > time.Minute {
		m.lastSweep = now
		for k, e := range m.entries {
			if !e.expires.IsZero() && now.After(e.expires) {
				delete(m.entries, k)
			}
		}
	}
}

// Generation returns a dataset's generation.
func (m *Memory) Generation(_ context.Context, dataset string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[dataset]
}

// Bump advances a dataset's generation.
func (m *Memory) Bump(_ context.Context, dataset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[dataset]++
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
