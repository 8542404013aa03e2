// Package config loads engine settings.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/agentic-research/loom/internal/trace"
)

// Default configuration values.
const (
	DefaultConformance     = "strict"
	DefaultTraceLevel      = "warning"
	DefaultCacheMaxEntries = 256
	DefaultMaxDepth        = 64
	EnvPrefix              = "LOOM_"
)

// Config is the resolved engine configuration.
type Config struct {
	// Conformance is "strict" (provider failures propagate) or "lax"
	// (provider failures are logged and yield no data).
	Conformance string            `koanf:"conformance"`
	TraceLevel  string            `koanf:"trace_level"`
	Cache       CacheConfig       `koanf:"cache"`
	MaxDepth    int               `koanf:"max_depth"`
	StyleKeys   bool              `koanf:"style_keys"`
	Namespaces  map[string]string `koanf:"namespaces"`
}

// CacheConfig sizes the shared data cache.
type CacheConfig struct {
	MaxEntries int `koanf:"max_entries"`
	// Duration overrides every source without its own cache duration.
	Duration time.Duration `koanf:"duration"`
}

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	return &Config{
		Conformance: DefaultConformance,
		TraceLevel:  DefaultTraceLevel,
		Cache:       CacheConfig{MaxEntries: DefaultCacheMaxEntries},
		MaxDepth:    DefaultMaxDepth,
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > loom.yaml > loom.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"loom.yaml", "loom.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads defaults, the config file, LOOM_* environment variables and
// explicitly set flags, in that order.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"conformance":       DefaultConformance,
		"trace_level":       DefaultTraceLevel,
		"cache.max_entries": DefaultCacheMaxEntries,
		"cache.duration":    "0s",
		"max_depth":         DefaultMaxDepth,
		"style_keys":        false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// LOOM_CACHE__MAX_ENTRIES -> cache.max_entries
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "cache_duration":
				key = "cache.duration"
			case "cache_entries":
				key = "cache.max_entries"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot act on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Conformance) {
	case "strict", "lax":
	default:
		return fmt.Errorf("invalid conformance %q: want strict or lax", c.Conformance)
	}
	if _, err := trace.ParseLevel(c.TraceLevel); err != nil {
		return err
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if c.Cache.Duration < 0 {
		return fmt.Errorf("cache.duration must not be negative")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	return nil
}

// Lax reports whether provider failures degrade to "no data".
func (c *Config) Lax() bool {
	return strings.EqualFold(c.Conformance, "lax")
}

// Level returns the parsed trace level; Validate has already vetted it.
func (c *Config) Level() trace.Level {
	l, _ := trace.ParseLevel(c.TraceLevel)
	return l
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("conformance", DefaultConformance, "provider failure handling: strict or lax")
	fs.String("trace-level", DefaultTraceLevel, "trace level: off, error, warning, message, verbose, debug")
	fs.Duration("cache-duration", 0, "default cache duration for data sources")
	fs.Int("cache-entries", DefaultCacheMaxEntries, "maximum cached data source results")
	fs.Int("max-depth", DefaultMaxDepth, "maximum component nesting depth during binding")
	fs.Bool("style-keys", false, "stamp generated components with position-derived style keys")
}
