package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisStoreWithClient(client, DefaultConfig()), mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), Config: DefaultConfig()})
	require.NoError(t, err)
	defer store.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{Addr: "localhost:99999", Config: DefaultConfig()})
	assert.Error(t, err)
}

func TestRedisStore_WriteAndRead(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	rows := Rows{
		{"id": 1, "name": "Ada", "tags": []interface{}{"a", "b"}},
		{"id": 2, "name": "Grace", "site": map[string]interface{}{"id": 7}},
	}
	require.NoError(t, store.Write(ctx, "people", rows, time.Time{}))
	assert.True(t, mr.Exists("perry:people"))

	got, err := store.Read(ctx, "people")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0]["id"])
	assert.Equal(t, "Ada", got[0]["name"])
	assert.Equal(t, []interface{}{"a", "b"}, got[0]["tags"])
	site, ok := got[1]["site"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 7, site["id"])
}

func TestRedisStore_Miss(t *testing.T) {
	store, _ := setupTestRedis(t)
	_, err := store.Read(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "k", Rows{{"id": 1}}, time.Time{}))
	assert.Equal(t, DefaultLongevity, mr.TTL("perry:k"))

	mr.FastForward(DefaultLongevity + time.Second)
	_, err := store.Read(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_PastExpiryIsNotWritten(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "k", Rows{{"id": 1}}, time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("perry:k"))
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "kept"))
	require.NoError(t, store.Write(ctx, "a", Rows{}, time.Time{}))
	require.NoError(t, store.Write(ctx, "b", Rows{}, time.Time{}))

	require.NoError(t, store.Delete(ctx, "a"))
	assert.False(t, mr.Exists("perry:a"))

	require.NoError(t, store.Sweep(ctx))
	assert.True(t, mr.Exists("perry:b"))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("perry:b"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_EmptyPrefixKeepsForeignKeys(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{})
	ctx := context.Background()

	require.NoError(t, mr.Set("session:42", "kept"))
	require.NoError(t, store.Write(ctx, "a", Rows{}, time.Time{}))
	assert.True(t, mr.Exists("perry:a"))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("perry:a"))
	assert.True(t, mr.Exists("session:42"))
}
