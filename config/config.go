package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "NEARDUP_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Finder    FinderConfig    `yaml:"finder"`
	Store     StoreConfig     `yaml:"store"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"

	Port int `yaml:"port" validate:"gte=1,lte=65535"` // default: 8080

	// Mode is "debug", "release" or "test"; default: "release".
	Mode string `yaml:"mode" validate:"oneof=debug release test"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"` // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"apiKeys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gt=0"` // default: 20

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst" validate:"gte=1"` // default: 40
}

// CacheConfig controls the similar-pairs response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int `yaml:"maxEntries" validate:"gte=1"` // default: 1000

	// TTL is how long a cached response lives regardless of max_age.
	TTL time.Duration `yaml:"ttl" validate:"gt=0"` // default: 10m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"` // default: "info"
	Format string `yaml:"format" validate:"oneof=json text"`             // default: "json"
}

// FinderConfig controls near-duplicate search.
type FinderConfig struct {
	// Rotations are the banded passes run when a request names none.
	Rotations []int `yaml:"rotations" validate:"min=1,dive,gte=1,lte=63"` // default: [8 16 24 32]

	// MaxFingerprints caps the size of one /similar request.
	MaxFingerprints int `yaml:"maxFingerprints" validate:"gte=2"` // default: 1000000

	// ExactLimit is the largest input for which an exact search is allowed.
	ExactLimit int `yaml:"exactLimit" validate:"gte=0"` // default: 5000

	// Hasher is the token hasher used when a request names none.
	Hasher string `yaml:"hasher" validate:"oneof=fnv1a xxhash farmhash siphash"` // default: "fnv1a"

	// Concurrency bounds the passes run at once for one search.
	Concurrency int `yaml:"concurrency" validate:"gte=1"` // default: 4
}

// StoreConfig controls the badger fingerprint store.
type StoreConfig struct {
	// Enabled toggles the collection endpoints.
	Enabled bool `yaml:"enabled"` // default: true

	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path" validate:"required_without=InMemory"` // default: "./data"

	// InMemory keeps all data in memory.
	InMemory bool `yaml:"inMemory"` // default: false
}

// JobsConfig controls background dedupe jobs.
type JobsConfig struct {
	// Concurrency is the number of dedupe jobs run at once.
	Concurrency int `yaml:"concurrency" validate:"gte=1"` // default: 2

	// Retention is how long finished jobs stay queryable.
	Retention time.Duration `yaml:"retention" validate:"gt=0"` // default: 1h
}

// WebhookConfig controls job completion notifications.
type WebhookConfig struct {
	// Secret signs payloads when a request carries no secret of its own.
	Secret string `yaml:"secret"`

	// MaxRetries is the number of redeliveries after the first attempt.
	MaxRetries int `yaml:"maxRetries" validate:"gte=0"` // default: 3

	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"` // default: 10s
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`                      // default: true
	Path    string `yaml:"path" validate:"startswith=/"` // default: "/metrics"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL:        10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Finder: FinderConfig{
			Rotations:       []int{8, 16, 24, 32},
			MaxFingerprints: 1_000_000,
			ExactLimit:      5000,
			Hasher:          "fnv1a",
			Concurrency:     4,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "./data",
		},
		Jobs: JobsConfig{
			Concurrency: 2,
			Retention:   time.Hour,
		},
		Webhook: WebhookConfig{
			MaxRetries: 3,
			Timeout:    10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by NEARDUP_CONFIG, and NEARDUP_* environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("NEARDUP_HOST", c.Server.Host)
	c.Server.Port = envIntOr("NEARDUP_PORT", c.Server.Port)
	c.Server.Mode = envOr("NEARDUP_MODE", c.Server.Mode)
	c.Server.ShutdownTimeout = envDurationOr("NEARDUP_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Auth.Enabled = envBoolOr("NEARDUP_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("NEARDUP_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("NEARDUP_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("NEARDUP_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("NEARDUP_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("NEARDUP_CACHE_TTL", c.Cache.TTL)

	c.Log.Level = envOr("NEARDUP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("NEARDUP_LOG_FORMAT", c.Log.Format)

	c.Finder.Rotations = envIntSliceOr("NEARDUP_ROTATIONS", c.Finder.Rotations)
	c.Finder.MaxFingerprints = envIntOr("NEARDUP_MAX_FINGERPRINTS", c.Finder.MaxFingerprints)
	c.Finder.ExactLimit = envIntOr("NEARDUP_EXACT_LIMIT", c.Finder.ExactLimit)
	c.Finder.Hasher = envOr("NEARDUP_HASHER", c.Finder.Hasher)
	c.Finder.Concurrency = envIntOr("NEARDUP_FINDER_CONCURRENCY", c.Finder.Concurrency)

	c.Store.Enabled = envBoolOr("NEARDUP_STORE_ENABLED", c.Store.Enabled)
	c.Store.Path = envOr("NEARDUP_STORE_PATH", c.Store.Path)
	c.Store.InMemory = envBoolOr("NEARDUP_STORE_IN_MEMORY", c.Store.InMemory)

	c.Jobs.Concurrency = envIntOr("NEARDUP_JOB_CONCURRENCY", c.Jobs.Concurrency)
	c.Jobs.Retention = envDurationOr("NEARDUP_JOB_RETENTION", c.Jobs.Retention)

	c.Webhook.Secret = envOr("NEARDUP_WEBHOOK_SECRET", c.Webhook.Secret)
	c.Webhook.MaxRetries = envIntOr("NEARDUP_WEBHOOK_RETRIES", c.Webhook.MaxRetries)
	c.Webhook.Timeout = envDurationOr("NEARDUP_WEBHOOK_TIMEOUT", c.Webhook.Timeout)

	c.Metrics.Enabled = envBoolOr("NEARDUP_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = envOr("NEARDUP_METRICS_PATH", c.Metrics.Path)
}

func envIntSliceOr(key string, fallback []int) []int {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]int, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if i, err := strconv.Atoi(trimmed); err == nil {
					result = append(result, i)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
