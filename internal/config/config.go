// Package config loads pitcache configuration from the YAML config file,
// environment variables, and defaults, and owns logger construction.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/quantarc/pitcache/internal/cache"
)

// Environment variable overrides. Precedence is flag > env > file > default.
const (
	EnvCacheDir = "PITCACHE_CACHE_DIR"
	EnvTTLDays  = "PITCACHE_TTL_DAYS"
	EnvLogLevel = "PITCACHE_LOG_LEVEL"
)

// Config is the root configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the cache store.
type CacheConfig struct {
	// Directory is the cache directory. Defaults to ~/.pitcache/cache.
	Directory string `yaml:"directory"`

	// TTLDays is the entry lifetime in days. Defaults to cache.DefaultTTLDays.
	TTLDays int `yaml:"ttl_days"`

	// Extension is the artifact file extension, including the dot.
	// Defaults to cache.DefaultExtension.
	Extension string `yaml:"extension"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is a zerolog level name ("debug", "info", ...). Default "info".
	Level string `yaml:"level"`

	// Format is "console" or "json". Empty auto-selects: console when
	// stderr is a terminal, JSON otherwise.
	Format string `yaml:"format"`

	// File, when set, appends logs to this path in addition to stderr.
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Directory: DefaultCacheDir(),
			TTLDays:   cache.DefaultTTLDays,
			Extension: cache.DefaultExtension,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path on top of defaults and applies
// environment overrides. A missing file is not an error; a malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No config file; defaults plus env.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		c.Cache.Directory = dir
	}
	if raw := os.Getenv(EnvTTLDays); raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			c.Cache.TTLDays = days
		}
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) validate() error {
	if c.Cache.TTLDays < 0 {
		return fmt.Errorf("cache.ttl_days must be >= 0, got %d", c.Cache.TTLDays)
	}
	if ext := c.Cache.Extension; ext != "" && ext[0] != '.' {
		return fmt.Errorf("cache.extension must start with a dot, got %q", ext)
	}
	return nil
}

// DefaultConfigPath returns ~/.pitcache/config.yaml, or a relative fallback
// when the home directory cannot be resolved.
func DefaultConfigPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

// DefaultCacheDir returns ~/.pitcache/cache.
func DefaultCacheDir() string {
	return filepath.Join(baseDir(), "cache")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pitcache"
	}
	return filepath.Join(home, ".pitcache")
}
