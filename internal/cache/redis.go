package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisStore is a store shared between processes. Rows are msgpack encoded
// and expiry is delegated to redis key TTLs.
type RedisStore struct {
	client *redis.Client
	config Config
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Config holds common cache configuration
	Config Config
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Config: DefaultConfig(),
	}
}

// NewRedisStore connects to redis and verifies the connection
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewRedisStoreWithClient(client, config.Config), nil
}

// NewRedisStoreWithClient creates a store with an existing client. An empty
// prefix is replaced with the default one so Clear never scans the whole
// database.
func NewRedisStoreWithClient(client *redis.Client, config Config) *RedisStore {
	if config.Longevity <= 0 {
		config.Longevity = DefaultLongevity
	}
	if config.Prefix == "" {
		config.Prefix = DefaultConfig().Prefix
	}
	return &RedisStore{
		client: client,
		config: config,
	}
}

// Read returns the rows stored under key
func (r *RedisStore) Read(ctx context.Context, key string) (Rows, error) {
	data, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss{Key: key}
		}
		return nil, err
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var rows Rows
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode cached rows for %s: %w", key, err)
	}
	return rows, nil
}

// Write stores rows under key until expiresAt. Entries already expired are
// not written.
func (r *RedisStore) Write(ctx context.Context, key string, rows Rows, expiresAt time.Time) error {
	ttl := r.config.Longevity
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return r.Delete(ctx, key)
		}
	}

	data, err := msgpack.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows for %s: %w", key, err)
	}
	return r.client.Set(ctx, r.config.Prefix+key, data, ttl).Err()
}

// Delete removes a single entry
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// Sweep is a no-op: redis evicts expired keys itself
func (r *RedisStore) Sweep(ctx context.Context) error {
	return nil
}

// Clear removes every key under the store's prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
