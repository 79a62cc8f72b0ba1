package cache

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// ResetFunc clears one cache when the caching registry is reset
type ResetFunc func(ctx context.Context) error

// Caching is the process-wide switch for record caching. It gates the
// caching middleware and holds the reset callbacks of every live cache so a
// successful write can invalidate them all. Its shared store is cleared on
// every reset and survives Clean.
type Caching struct {
	mu       sync.Mutex
	enabled  bool
	registry []ResetFunc
	shared   *MemoryStore
}

// NewCaching creates a disabled caching registry with no callbacks
func NewCaching() *Caching {
	return &Caching{}
}

// Register adds a reset callback
func (c *Caching) Register(fn ResetFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = append(c.registry, fn)
}

// RegisterStore registers a store's Clear as a reset callback
func (c *Caching) RegisterStore(s Store) {
	c.Register(s.Clear)
}

// Shared returns the memory store used by every caching middleware under c
// that is not given its own store
func (c *Caching) Shared() *MemoryStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shared == nil {
		c.shared = NewMemoryStore(DefaultLongevity)
	}
	return c.shared
}

// Registered returns the number of registered callbacks, not counting the
// shared store
func (c *Caching) Registered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registry)
}

// Reset runs every registered callback. All callbacks run even if some
// fail; the failures are combined.
func (c *Caching) Reset(ctx context.Context) error {
	c.mu.Lock()
	callbacks := make([]ResetFunc, len(c.registry), len(c.registry)+1)
	copy(callbacks, c.registry)
	if c.shared != nil {
		callbacks = append(callbacks, c.shared.Clear)
	}
	c.mu.Unlock()

	var err error
	for _, fn := range callbacks {
		err = multierr.Append(err, fn(ctx))
	}
	return err
}

// Enable turns caching on
func (c *Caching) Enable() {
	c.setEnabled(true)
}

// Disable turns caching off
func (c *Caching) Disable() {
	c.setEnabled(false)
}

// Enabled reports whether caching is on
func (c *Caching) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Caching) setEnabled(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.enabled
	c.enabled = v
	return prev
}

// Use runs fn with caching enabled. Every cache is reset when fn returns
// and the previous enabled state is restored, even if fn fails.
func (c *Caching) Use(ctx context.Context, fn func() error) (err error) {
	prev := c.setEnabled(true)
	defer func() {
		err = multierr.Append(err, c.Reset(ctx))
		c.setEnabled(prev)
	}()
	return fn()
}

// Forgo runs fn with caching disabled and restores the previous state
func (c *Caching) Forgo(fn func() error) error {
	prev := c.setEnabled(false)
	defer c.setEnabled(prev)
	return fn()
}

// Clean drops every callback, empties the shared store and disables
// caching. The shared store stays attached to c.
func (c *Caching) Clean() {
	c.mu.Lock()
	c.registry = nil
	c.enabled = false
	shared := c.shared
	c.mu.Unlock()

	if shared != nil {
		shared.Clear(context.Background())
	}
}

var defaultCaching = NewCaching()

// Default returns the process-wide caching registry
func Default() *Caching {
	return defaultCaching
}

// SharedStore returns the shared store of Default
func SharedStore() *MemoryStore {
	return defaultCaching.Shared()
}

// Enable turns process-wide caching on
func Enable() { defaultCaching.Enable() }

// Disable turns process-wide caching off
func Disable() { defaultCaching.Disable() }

// Enabled reports whether process-wide caching is on
func Enabled() bool { return defaultCaching.Enabled() }

// Reset clears every cache registered with the default registry
func Reset(ctx context.Context) error { return defaultCaching.Reset(ctx) }

// Use runs fn with process-wide caching enabled, see Caching.Use
func Use(ctx context.Context, fn func() error) error { return defaultCaching.Use(ctx, fn) }

// Forgo runs fn with process-wide caching disabled
func Forgo(fn func() error) error { return defaultCaching.Forgo(fn) }
