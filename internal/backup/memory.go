package backup

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/marketid/internal/dependencies/clock"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV is an in-process KV. Expiry is measured against the injected clock.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	clock clock.Clock
}

// Ensure MemoryKV implements KV
var _ KV = (*MemoryKV)(nil)

// NewMemoryKV creates an empty in-memory KV
func NewMemoryKV(clk clock.Clock) *MemoryKV {
	return &MemoryKV{
		items: make(map[string]memoryItem),
		clock: clk,
	}
}

// Get returns the value under key. An expired item is removed and reported
// as ErrNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(item, m.clock.Now()) {
		delete(m.items, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if ttl > 0 {
		item.expiresAt = m.clock.Now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Sweep removes every expired item and returns how many were removed
func (m *MemoryKV) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for key, item := range m.items {
		if m.expired(item, now) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryKV) expired(item memoryItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && !now.Before(item.expiresAt)
}

// Len returns the number of stored keys, including expired ones not yet swept
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
