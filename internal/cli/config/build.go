package config

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/adapter/middlewares"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/orm/schema"
	"github.com/perry-go/perry/internal/orm/validation"
	"github.com/perry-go/perry/internal/transport/memory"
	"github.com/perry-go/perry/internal/transport/rest"
	"github.com/perry-go/perry/internal/transport/rpc"
)

// Environment is a configuration turned into live models
type Environment struct {
	Registry *schema.Registry
	Caching  *cache.Caching
	Logger   *zap.Logger
	// Store is the cache store shared by every cache_records stage
	Store cache.Store

	rules   map[string]*validation.Set
	closers []func() error
}

// Close releases the cache store connection and the pooled rpc connections
func (e *Environment) Close() error {
	var err error
	for i := len(e.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, e.closers[i]())
	}
	e.closers = nil
	return err
}

// NewLogger builds the zap logger described by cfg
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Build defines every configured model in a fresh registry and wires its
// adapters. Models with no adapter type read from the default memory store.
func Build(cfg *Config, logger *zap.Logger) (*Environment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env := &Environment{
		Registry: schema.NewRegistry(),
		Caching:  cache.NewCaching(),
		Logger:   logger,
		rules:    make(map[string]*validation.Set),
	}
	env.closers = append(env.closers, rpc.CloseAll)

	if cfg.Caching.Enabled {
		env.Caching.Enable()
	}
	store, err := newStore(cfg.Caching)
	if err != nil {
		return nil, err
	}
	env.Store = store
	if rs, ok := store.(*cache.RedisStore); ok {
		env.closers = append(env.closers, rs.Close)
	}

	for _, mc := range cfg.Models {
		m, err := env.Registry.Define(mc.Name, mc.Fields...)
		if err != nil {
			env.Close()
			return nil, err
		}
		if mc.PrimaryKey != "" {
			if err := m.SetPrimaryKey(mc.PrimaryKey); err != nil {
				env.Close()
				return nil, err
			}
		}
	}

	for _, mc := range cfg.Models {
		m, _ := env.Registry.Get(mc.Name)
		declareAssociations(m, mc.Associations)
		set, err := Rules(mc)
		if err != nil {
			env.Close()
			return nil, err
		}
		if set != nil {
			env.rules[mc.Name] = set
		}
		if err := env.wire(m, mc); err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to configure %s: %w", mc.Name, err)
		}
	}
	return env, nil
}

func newStore(cfg CachingConfig) (cache.Store, error) {
	longevity := cfg.Longevity
	if longevity <= 0 {
		longevity = cache.DefaultLongevity
	}
	if cfg.Store != "redis" {
		return cache.NewMemoryStore(longevity), nil
	}
	return cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Config:   cache.Config{Longevity: longevity, Prefix: cfg.Redis.Prefix},
	})
}

func declareAssociations(m *schema.Model, associations []AssociationConfig) {
	for _, a := range associations {
		opts := schema.AssociationOptions{
			ClassName:            a.ClassName,
			ForeignKey:           a.ForeignKey,
			PrimaryKey:           a.PrimaryKey,
			Polymorphic:          a.Polymorphic,
			PolymorphicNamespace: a.PolymorphicNamespace,
			As:                   a.As,
			Through:              a.Through,
			Source:               a.Source,
			SourceType:           a.SourceType,
		}
		switch a.Kind {
		case "belongs_to":
			m.BelongsTo(a.Name, opts)
		case "has_one":
			m.HasOne(a.Name, opts)
		case "has_many":
			m.HasMany(a.Name, opts)
		}
	}
}

// wire configures the read and write adapters of m with the same stack
func (e *Environment) wire(m *schema.Model, mc ModelConfig) error {
	transport := mc.Adapter.Type
	contexts := []adapter.Context{adapter.Config{
		Host:            mc.Adapter.Host,
		Port:            mc.Adapter.Port,
		Service:         mc.Adapter.Service,
		Namespace:       mc.Adapter.Namespace,
		Format:          mc.Adapter.Format,
		PostBodyWrapper: mc.Adapter.PostBodyWrapper,
		PrimaryKey:      mc.Adapter.PrimaryKey,
		Timeout:         mc.Adapter.Timeout,
		DefaultOptions:  mc.Adapter.DefaultOptions,
		Logger:          e.Logger.Named(m.Name()),
		Caching:         e.Caching,
	}}
	if transport == "" {
		transport = memory.TypeName
		contexts = append(contexts, memory.Default().Context())
	}

	stages, err := e.stages(mc.Middlewares, middlewares.KindMiddleware)
	if err != nil {
		return err
	}
	contexts = append(contexts, stages...)
	stages, err = e.stages(mc.Processors, middlewares.KindProcessor)
	if err != nil {
		return err
	}
	contexts = append(contexts, stages...)

	if err := m.ReadWith(transport, contexts...); err != nil {
		return err
	}
	return m.WriteWith(transport, contexts...)
}

func (e *Environment) stages(list []StageConfig, kind middlewares.Kind) ([]adapter.Context, error) {
	out := make([]adapter.Context, 0, len(list))
	for _, sc := range list {
		got, ok := middlewares.KindOf(sc.Name)
		if ok && got != kind {
			return nil, fmt.Errorf("stage %q is not a %s", sc.Name, kindName(kind))
		}

		options := sc.Options
		if _, own := options[middlewares.OptionLongevity]; sc.Name == middlewares.NameCacheRecords && !own {
			options = withDefault(options, middlewares.OptionStore, e.Store)
		}
		ctx, err := middlewares.Named(sc.Name, options)
		if err != nil {
			return nil, err
		}
		out = append(out, ctx)
	}
	return out, nil
}

func kindName(k middlewares.Kind) string {
	if k == middlewares.KindProcessor {
		return "processor"
	}
	return "middleware"
}

func withDefault(options map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(options)+1)
	for k, v := range options {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}

// Transports lists the transport types a model can be configured with
func Transports() []string {
	return []string{memory.TypeName, rest.TypeName, rpc.TypeName}
}
