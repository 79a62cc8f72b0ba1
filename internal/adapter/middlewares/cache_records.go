package middlewares

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/orm/query"
)

// CacheRecords options
const (
	// OptionExpires names a field of the first returned row whose time value
	// becomes the entry's expiry
	OptionExpires = "expires"
	// OptionRecordCountThreshold is the largest result that gets cached
	OptionRecordCountThreshold = "record_count_threshold"
	// OptionNamespace replaces the queried type's full name in cache keys, so
	// models with the same namespace share entries
	OptionNamespace = "namespace"
	// OptionStore gives the middleware its own cache.Store
	OptionStore = "store"
	// OptionLongevity gives the middleware its own memory store with this
	// default lifetime
	OptionLongevity = "longevity"
)

type cacheRecords struct {
	next      adapter.Handler
	caching   *cache.Caching
	store     cache.Store
	namespace string
	expires   string
	threshold int
	limited   bool
	logger    *zap.Logger

	flight singleflight.Group
}

// NewCacheRecords builds the record cache middleware. While caching is
// enabled, reads are answered from the store when an unexpired entry exists
// for the same payload; misses are dispatched and their rows stored.
func NewCacheRecords(next adapter.Handler, cfg adapter.StageConfig) (adapter.Handler, error) {
	m := &cacheRecords{
		next:    next,
		caching: cfg.Adapter.Caching,
		logger:  cfg.Adapter.Logger,
	}
	if m.caching == nil {
		m.caching = cache.Default()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	var err error
	if m.namespace, err = stringOption(cfg.Options, OptionNamespace); err != nil {
		return nil, err
	}
	if m.expires, err = stringOption(cfg.Options, OptionExpires); err != nil {
		return nil, err
	}
	if m.threshold, m.limited, err = intOption(cfg.Options, OptionRecordCountThreshold); err != nil {
		return nil, err
	}

	longevity, err := durationOption(cfg.Options, OptionLongevity)
	if err != nil {
		return nil, err
	}

	switch s := cfg.Options[OptionStore].(type) {
	case nil:
		if longevity > 0 {
			own := cache.NewMemoryStore(longevity)
			m.caching.RegisterStore(own)
			m.store = own
		} else {
			m.store = m.caching.Shared()
		}
	case cache.Store:
		m.caching.RegisterStore(s)
		m.store = s
	default:
		return nil, optionError(OptionStore, "a cache.Store", s)
	}

	return m, nil
}

func (m *cacheRecords) Call(ctx context.Context, req *adapter.Request) (*adapter.Result, error) {
	if req.Mode != adapter.ModeRead || req.Relation == nil {
		return m.next.Call(ctx, req)
	}

	modifiers := req.Relation.ModifiersValue()
	if truthy(modifiers[query.ModifierNoop]) {
		return &adapter.Result{Rows: []adapter.Row{}}, nil
	}
	if !m.caching.Enabled() {
		return m.next.Call(ctx, req)
	}

	if truthy(modifiers[query.ModifierResetCache]) {
		if err := m.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset cache store: %w", err)
		}
	}

	payload, err := req.Relation.ToHash(ctx)
	if err != nil {
		return nil, err
	}
	key, err := cache.Key(m.identity(req.Relation), payload)
	if err != nil {
		return nil, err
	}

	if req.Relation.IsFresh() {
		rows, err := m.fetch(ctx, req, key)
		if err != nil {
			return nil, err
		}
		return &adapter.Result{Rows: rows}, nil
	}

	rows, err := m.store.Read(ctx, key)
	if err == nil {
		m.logger.Debug("cache hit",
			zap.String("model", req.Relation.Target().Name()),
			zap.String("key", key),
			zap.Int("rows", len(rows)))
		return &adapter.Result{Rows: rows}, nil
	}
	if !cache.IsCacheMiss(err) {
		m.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	ch := m.flight.DoChan(key, func() (interface{}, error) {
		return m.fetch(context.WithoutCancel(ctx), req, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rows := res.Val.([]adapter.Row)
		if res.Shared {
			rows = copyRows(rows)
		}
		return &adapter.Result{Rows: rows}, nil
	}
}

func copyRows(rows []adapter.Row) []adapter.Row {
	if rows == nil {
		return nil
	}
	out := make([]adapter.Row, len(rows))
	for i, row := range rows {
		c := make(adapter.Row, len(row))
		for k, v := range row {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

// fetch dispatches downstream and stores the rows when they qualify
func (m *cacheRecords) fetch(ctx context.Context, req *adapter.Request, key string) ([]adapter.Row, error) {
	res, err := m.next.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Rows == nil {
		return nil, nil
	}
	if m.limited && len(res.Rows) > m.threshold {
		return res.Rows, nil
	}

	if err := m.store.Write(ctx, key, res.Rows, m.expiry(res.Rows)); err != nil {
		m.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return res.Rows, nil
}

func (m *cacheRecords) identity(r *query.Relation) string {
	if m.namespace != "" {
		return m.namespace
	}
	return r.Target().Name()
}

// expiry reads the configured expires field of the first row. The zero time
// means the store's default lifetime.
func (m *cacheRecords) expiry(rows []adapter.Row) time.Time {
	if m.expires == "" || len(rows) == 0 {
		return time.Time{}
	}
	switch v := rows[0][m.expires].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case float64:
		return time.Unix(int64(v), 0)
	default:
		return time.Time{}
	}
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	default:
		return true
	}
}
