package adapter

import (
	"time"

	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/cache"
)

// Config is the folded configuration of an adapter. Scalars set by a later
// context override earlier ones; stage lists and option maps accumulate.
type Config struct {
	// Type names the registered transport, e.g. "memory", "restful_http", "rpc"
	Type string

	Host      string
	Port      int
	Service   string
	Namespace string

	// Format is appended to REST urls and selects the response parser, e.g. ".json"
	Format string

	// PostBodyWrapper wraps REST form fields as wrapper[field]
	PostBodyWrapper string

	// PrimaryKey overrides the record's primary key for url building
	PrimaryKey string

	// DefaultOptions are sent with every write and delete
	DefaultOptions map[string]interface{}

	Timeout time.Duration

	// Processors run above the bridge and see records
	Processors []Stage
	// Middlewares run below the bridge and see raw rows
	Middlewares []Stage

	// Extra carries transport specific settings
	Extra map[string]interface{}

	Logger  *zap.Logger
	Caching *cache.Caching
}

// Context is one layer of adapter configuration
type Context interface {
	Apply(base Config) Config
}

// Configurator is a configuration context computed from the configuration
// folded so far
type Configurator func(Config) Config

// Apply implements Context
func (f Configurator) Apply(base Config) Config {
	return f(base)
}

// Apply implements Context by merging c onto base
func (c Config) Apply(base Config) Config {
	out := base.clone()

	if c.Type != "" {
		out.Type = c.Type
	}
	if c.Host != "" {
		out.Host = c.Host
	}
	if c.Port != 0 {
		out.Port = c.Port
	}
	if c.Service != "" {
		out.Service = c.Service
	}
	if c.Namespace != "" {
		out.Namespace = c.Namespace
	}
	if c.Format != "" {
		out.Format = c.Format
	}
	if c.PostBodyWrapper != "" {
		out.PostBodyWrapper = c.PostBodyWrapper
	}
	if c.PrimaryKey != "" {
		out.PrimaryKey = c.PrimaryKey
	}
	if c.Timeout != 0 {
		out.Timeout = c.Timeout
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	if c.Caching != nil {
		out.Caching = c.Caching
	}

	out.Processors = append(out.Processors, c.Processors...)
	out.Middlewares = append(out.Middlewares, c.Middlewares...)
	out.DefaultOptions = mergeMaps(out.DefaultOptions, c.DefaultOptions)
	out.Extra = mergeMaps(out.Extra, c.Extra)

	return out
}

// AddMiddleware returns a context that appends a middleware stage
func AddMiddleware(name string, factory StageFactory, options map[string]interface{}) Context {
	return Configurator(func(c Config) Config {
		c.Middlewares = append(c.Middlewares, Stage{Name: name, New: factory, Options: options})
		return c
	})
}

// AddProcessor returns a context that appends a processor stage
func AddProcessor(name string, factory StageFactory, options map[string]interface{}) Context {
	return Configurator(func(c Config) Config {
		c.Processors = append(c.Processors, Stage{Name: name, New: factory, Options: options})
		return c
	})
}

// Fold applies contexts left to right onto an empty configuration
func Fold(contexts []Context) Config {
	var cfg Config
	for _, ctx := range contexts {
		if ctx != nil {
			cfg = ctx.Apply(cfg.clone())
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Caching == nil {
		cfg.Caching = cache.Default()
	}
	return cfg
}

func (c Config) clone() Config {
	out := c
	out.Processors = append([]Stage(nil), c.Processors...)
	out.Middlewares = append([]Stage(nil), c.Middlewares...)
	out.DefaultOptions = mergeMaps(nil, c.DefaultOptions)
	out.Extra = mergeMaps(nil, c.Extra)
	return out
}

func mergeMaps(base, over map[string]interface{}) map[string]interface{} {
	if base == nil && over == nil {
		return nil
	}
	out := make(map[string]interface{}, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
