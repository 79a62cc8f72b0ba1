// Package cache provides the TTL stores behind the record caching
// middleware and the process-wide caching switch that resets them.
package cache

import (
	"context"
	"time"
)

// DefaultLongevity is the lifetime of an entry written without an expiry
const DefaultLongevity = 5 * time.Minute

// Rows is the cached value: the raw field maps returned by a transport
type Rows = []map[string]interface{}

// Store defines the interface for all cache backends
type Store interface {
	// Read returns the rows stored under key. Misses and expired entries
	// return ErrCacheMiss.
	Read(ctx context.Context, key string) (Rows, error)

	// Write stores rows under key until expiresAt. A zero expiresAt uses
	// the store's default longevity.
	Write(ctx context.Context, key string, rows Rows, expiresAt time.Time) error

	// Delete removes a single entry
	Delete(ctx context.Context, key string) error

	// Sweep removes every expired entry
	Sweep(ctx context.Context) error

	// Clear removes every entry
	Clear(ctx context.Context) error
}

// Config holds common configuration for cache backends
type Config struct {
	// Longevity is the default time-to-live for cached rows
	Longevity time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		Longevity: DefaultLongevity,
		Prefix:    "perry:",
	}
}

// Entry is a cached value with its absolute expiry
type Entry struct {
	Value     Rows
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
