package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the perry configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Caching CachingConfig `mapstructure:"caching"`
	Serve   ServeConfig   `mapstructure:"serve"`
	Models  []ModelConfig `mapstructure:"models"`
}

// LoggingConfig selects the zap logger
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CachingConfig configures record caching
type CachingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Store     string        `mapstructure:"store"`
	Longevity time.Duration `mapstructure:"longevity"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// RedisConfig points the redis cache store at a server
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ServeConfig configures the fixture services of `perry serve`
type ServeConfig struct {
	RESTAddr        string `mapstructure:"rest_addr"`
	RPCAddr         string `mapstructure:"rpc_addr"`
	Data            string `mapstructure:"data"`
	Format          string `mapstructure:"format"`
	PostBodyWrapper string `mapstructure:"post_body_wrapper"`
}

// ModelConfig declares one model and the adapters behind it
type ModelConfig struct {
	Name         string              `mapstructure:"name"`
	Fields       []string            `mapstructure:"fields"`
	PrimaryKey   string              `mapstructure:"primary_key"`
	Adapter      AdapterConfig       `mapstructure:"adapter"`
	Middlewares  []StageConfig       `mapstructure:"middlewares"`
	Processors   []StageConfig       `mapstructure:"processors"`
	Associations []AssociationConfig `mapstructure:"associations"`
	Validations  []ValidationConfig  `mapstructure:"validations"`
}

// AdapterConfig mirrors adapter.Config for a configuration file
type AdapterConfig struct {
	Type            string                 `mapstructure:"type"`
	Host            string                 `mapstructure:"host"`
	Port            int                    `mapstructure:"port"`
	Service         string                 `mapstructure:"service"`
	Namespace       string                 `mapstructure:"namespace"`
	Format          string                 `mapstructure:"format"`
	PostBodyWrapper string                 `mapstructure:"post_body_wrapper"`
	PrimaryKey      string                 `mapstructure:"primary_key"`
	Timeout         time.Duration          `mapstructure:"timeout"`
	DefaultOptions  map[string]interface{} `mapstructure:"default_options"`
}

// StageConfig names a stock middleware or processor and its options
type StageConfig struct {
	Name    string                 `mapstructure:"name"`
	Options map[string]interface{} `mapstructure:"options"`
}

// AssociationConfig declares an association
type AssociationConfig struct {
	Kind                 string `mapstructure:"kind"`
	Name                 string `mapstructure:"name"`
	ClassName            string `mapstructure:"class_name"`
	ForeignKey           string `mapstructure:"foreign_key"`
	PrimaryKey           string `mapstructure:"primary_key"`
	Polymorphic          bool   `mapstructure:"polymorphic"`
	PolymorphicNamespace string `mapstructure:"polymorphic_namespace"`
	As                   string `mapstructure:"as"`
	Through              string `mapstructure:"through"`
	Source               string `mapstructure:"source"`
	SourceType           string `mapstructure:"source_type"`
}

// ValidationConfig lists the rules of one field. Unset rules are skipped.
type ValidationConfig struct {
	Field     string        `mapstructure:"field"`
	Presence  bool          `mapstructure:"presence"`
	Min       *float64      `mapstructure:"min"`
	Max       *float64      `mapstructure:"max"`
	MinLength int           `mapstructure:"min_length"`
	MaxLength int           `mapstructure:"max_length"`
	Pattern   string        `mapstructure:"pattern"`
	Format    string        `mapstructure:"format"`
	In        []interface{} `mapstructure:"in"`
}

// Load reads perry.yaml (or perry.yml) from the working directory, or the
// file at path when it is not empty. Values can be overridden with PERRY_*
// environment variables, e.g. PERRY_CACHING_ENABLED=true.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("caching.enabled", false)
	v.SetDefault("caching.store", "memory")
	v.SetDefault("caching.longevity", "5m")
	v.SetDefault("caching.redis.addr", "localhost:6379")
	v.SetDefault("caching.redis.prefix", "perry:")
	v.SetDefault("serve.rest_addr", "127.0.0.1:8080")
	v.SetDefault("serve.rpc_addr", "127.0.0.1:9090")
	v.SetDefault("serve.format", ".json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("perry")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PERRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ModelNames returns the configured model names in sorted order
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// Model returns the configuration of the named model
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// FindConfigFile walks up from the working directory looking for
// perry.yaml or perry.yml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"perry.yaml", "perry.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no perry.yaml found")
		}
		dir = parent
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Caching.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("caching.store must be memory or redis, got: %s", cfg.Caching.Store)
	}
	if cfg.Caching.Longevity < 0 {
		return fmt.Errorf("caching.longevity must not be negative, got: %s", cfg.Caching.Longevity)
	}

	seen := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		name := m.Name
		if name == "" {
			return fmt.Errorf("models entries must have a name")
		}
		if seen[name] {
			return fmt.Errorf("model %s is declared twice", name)
		}
		seen[name] = true
		if len(m.Fields) == 0 {
			return fmt.Errorf("model %s must list at least one field", name)
		}
		for _, a := range m.Associations {
			switch a.Kind {
			case "belongs_to", "has_one", "has_many":
			default:
				return fmt.Errorf("model %s association %q has unknown kind %q", name, a.Name, a.Kind)
			}
			if a.Name == "" {
				return fmt.Errorf("model %s has an association without a name", name)
			}
		}
		for _, v := range m.Validations {
			if v.Field == "" {
				return fmt.Errorf("model %s has a validation without a field", name)
			}
			switch v.Format {
			case "", "email", "url":
			default:
				return fmt.Errorf("model %s validation of %s has unknown format %q", name, v.Field, v.Format)
			}
		}
	}
	return nil
}
