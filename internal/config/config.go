// Package config loads shopsync configuration.
//
// Sources, lowest precedence first:
//  1. built-in defaults
//  2. a YAML file, with ${VAR_NAME} expanded from the environment
//  3. SHOPSYNC_* environment variables, after loading an optional .env file
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SHOPSYNC_CACHE_PATH.
const EnvPrefix = "SHOPSYNC"

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Remote source kinds.
const (
	RemoteHTTP    = "http"
	RemoteFile    = "file"
	RemoteOffline = "offline"
)

// Config is the complete shopsync configuration.
//
// Environment keys are derived from field names under EnvPrefix:
// SHOPSYNC_CACHE_BACKEND, SHOPSYNC_REDIS_ADDR, SHOPSYNC_REMOTE_BASE_URL and so on.
// Fields carry no envconfig tags because envconfig falls back to the bare
// tag name, which would read variables such as PATH.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Remote  RemoteConfig  `yaml:"remote"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig selects the durable cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// RemoteConfig selects the authoritative data source.
type RemoteConfig struct {
	Kind    string        `yaml:"kind"`
	BaseURL string        `yaml:"base_url" split_words:"true"`
	File    string        `yaml:"file"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Backend: BackendSQLite,
			Path:    "shopsync.db",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Namespace: "shopsync",
		},
		Remote: RemoteConfig{
			Kind:    RemoteOffline,
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Options controls where Load looks.
type Options struct {
	// Path is the YAML file. Empty skips the file.
	Path string
	// EnvFile is a dotenv file loaded before reading the environment.
	// Empty tries ".env" and ignores its absence.
	EnvFile string
}

// Load builds a Config from defaults, the YAML file and the environment,
// then validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the
// empty string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			return fmt.Errorf("redis.addr or redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of sqlite, redis", c.Cache.Backend)
	}

	switch c.Remote.Kind {
	case RemoteHTTP:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for the http source")
		}
	case RemoteFile:
		if c.Remote.File == "" {
			return fmt.Errorf("remote.file is required for the file source")
		}
	case RemoteOffline:
	default:
		return fmt.Errorf("remote.kind %q is not one of http, file, offline", c.Remote.Kind)
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", name)
	}
}
