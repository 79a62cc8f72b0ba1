package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process store. Expired entries are swept on every
// write and evicted when read; there is no background reaper.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	config  Config
	now     func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces the store's time source
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a new in-memory store. A zero longevity falls back
// to DefaultLongevity.
func NewMemoryStore(longevity time.Duration, opts ...MemoryOption) *MemoryStore {
	if longevity <= 0 {
		longevity = DefaultLongevity
	}
	m := &MemoryStore{
		entries: make(map[string]Entry),
		config:  Config{Longevity: longevity},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Longevity returns the default lifetime of new entries
func (m *MemoryStore) Longevity() time.Duration {
	return m.config.Longevity
}

// Read returns the rows stored under key
func (m *MemoryStore) Read(ctx context.Context, key string) (Rows, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	if entry.Expired(m.now()) {
		delete(m.entries, key)
		return nil, ErrCacheMiss{Key: key}
	}
	return entry.Value, nil
}

// Write sweeps expired entries, then stores rows under key
func (m *MemoryStore) Write(ctx context.Context, key string, rows Rows, expiresAt time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	if expiresAt.IsZero() {
		expiresAt = now.Add(m.config.Longevity)
	}
	m.entries[key] = Entry{Value: rows, ExpiresAt: expiresAt}
	return nil
}

// Delete removes a single entry
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Sweep removes every expired entry
func (m *MemoryStore) Sweep(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(m.now())
	return nil
}

// Clear removes every entry
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of entries, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
		}
	}
}
