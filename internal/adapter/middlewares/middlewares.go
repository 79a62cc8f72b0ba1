// Package middlewares provides the stock pipeline stages: the record cache
// and dispatch logging middlewares, and the association preloading
// processor.
package middlewares

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
)

// Stage names
const (
	NameCacheRecords        = "cache_records"
	NameLogging             = "logging"
	NamePreloadAssociations = "preload_associations"
)

// Kind says which list of the stack a stage belongs to
type Kind int

const (
	KindMiddleware Kind = iota
	KindProcessor
)

type entry struct {
	kind    Kind
	factory adapter.StageFactory
}

var stock = map[string]entry{
	NameCacheRecords:        {KindMiddleware, NewCacheRecords},
	NameLogging:             {KindMiddleware, NewLogging},
	NamePreloadAssociations: {KindProcessor, NewPreloadAssociations},
}

// Names returns the stock stage names, sorted
func Names() []string {
	names := make([]string, 0, len(stock))
	for name := range stock {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KindOf reports which list the stock stage called name belongs to
func KindOf(name string) (Kind, bool) {
	e, ok := stock[name]
	return e.kind, ok
}

// Named returns the context adding the stock stage called name. It lets
// stacks be described in configuration files.
func Named(name string, options map[string]interface{}) (adapter.Context, error) {
	e, ok := stock[name]
	if !ok {
		return nil, ormerr.NewConfigurationError("adapter", fmt.Sprintf("unknown stage %q", name))
	}
	if e.kind == KindProcessor {
		return adapter.AddProcessor(name, e.factory, options), nil
	}
	return adapter.AddMiddleware(name, e.factory, options), nil
}

// WithCacheRecords adds the record cache middleware
func WithCacheRecords(options map[string]interface{}) adapter.Context {
	return adapter.AddMiddleware(NameCacheRecords, NewCacheRecords, options)
}

// WithLogging adds the dispatch logging middleware
func WithLogging() adapter.Context {
	return adapter.AddMiddleware(NameLogging, NewLogging, nil)
}

// WithPreloadAssociations adds the association preloading processor
func WithPreloadAssociations() adapter.Context {
	return adapter.AddProcessor(NamePreloadAssociations, NewPreloadAssociations, nil)
}

func stringOption(options map[string]interface{}, key string) (string, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", optionError(key, "a string", v)
	}
	return s, nil
}

// intOption accepts the integer shapes configuration decoders produce
func intOption(options map[string]interface{}, key string) (int, bool, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, false, optionError(key, "an integer", v)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false, optionError(key, "an integer", v)
		}
		return i, true, nil
	default:
		return 0, false, optionError(key, "an integer", v)
	}
}

func durationOption(options map[string]interface{}, key string) (time.Duration, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, optionError(key, "a duration", v)
		}
		return parsed, nil
	default:
		return 0, optionError(key, "a duration", v)
	}
}

func optionError(key, want string, got interface{}) error {
	return ormerr.NewConfigurationError("adapter", fmt.Sprintf("option %s must be %s, got %T", key, want, got))
}
