// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Routing   RoutingConfig             `koanf:"routing"`
	RateLimit RateLimitConfig           `koanf:"rate_limit"`
	Cache     CacheConfig               `koanf:"cache"`
	Breaker   BreakerConfig             `koanf:"breaker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ProviderConfig holds the static descriptor for one upstream adapter, per
// the providers.<name> schema.
type ProviderConfig struct {
	Enabled              bool     `koanf:"enabled"`
	APIKey               string   `koanf:"api_key"`
	BaseURL              string   `koanf:"base_url"`
	DefaultModel         string   `koanf:"default_model"`
	TimeoutSeconds       int      `koanf:"timeout_seconds"`
	Priority             int      `koanf:"priority"`
	Models               []string `koanf:"models"`
	PromptPricePer1K     float64  `koanf:"prompt_price_per_1k"`
	CompletionPricePer1K float64  `koanf:"completion_price_per_1k"`
}

// RoutingConfig tunes the router's fallback and retry behavior.
type RoutingConfig struct {
	DefaultProvider string `koanf:"default_provider"`
	FallbackEnabled bool   `koanf:"fallback_enabled"`
	MaxRetries      int    `koanf:"max_retries"`
	RetryDelayMs    int    `koanf:"retry_delay_ms"`
}

// RateLimitConfig tunes the per-identifier token bucket.
type RateLimitConfig struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerMinute int  `koanf:"requests_per_minute"`
	// TokensPerMinute is accepted for schema compatibility; the gateway
	// only meters requests, not token volume.
	TokensPerMinute int `koanf:"tokens_per_minute"`
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	Enabled    bool   `koanf:"enabled"`
	TTLSeconds int    `koanf:"ttl_seconds"`
	MaxSize    int    `koanf:"max_size"`
	RedisAddr  string `koanf:"redis_addr"`
}

// BreakerConfig tunes the circuit breaker shared by every provider.
type BreakerConfig struct {
	FailureRatio       float64 `koanf:"failure_ratio"`
	MinRequests        int     `koanf:"min_requests"`
	WindowSeconds      int     `koanf:"window_seconds"`
	OpenTimeoutSeconds int     `koanf:"open_timeout_seconds"`
	HalfOpenProbes     int     `koanf:"half_open_probes"`
}

// envPrefix is the prefix that promotes an environment variable into a
// config override, e.g. AIGATEWAY_SERVER_PORT -> server.port.
const envPrefix = "AIGATEWAY_"

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config with defaults
// applied.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys.
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1]
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p
		}
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in the spec's documented defaults for any field the
// operator left at its YAML zero value.
func applyDefaults(cfg *Config) {
	if cfg.Routing.MaxRetries == 0 {
		cfg.Routing.MaxRetries = 2
	}
	if cfg.Routing.RetryDelayMs == 0 {
		cfg.Routing.RetryDelayMs = 1000
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Breaker.FailureRatio == 0 {
		cfg.Breaker.FailureRatio = 0.5
	}
	if cfg.Breaker.MinRequests == 0 {
		cfg.Breaker.MinRequests = 5
	}
	if cfg.Breaker.WindowSeconds == 0 {
		cfg.Breaker.WindowSeconds = 60
	}
	if cfg.Breaker.OpenTimeoutSeconds == 0 {
		cfg.Breaker.OpenTimeoutSeconds = 30
	}
	if cfg.Breaker.HalfOpenProbes == 0 {
		cfg.Breaker.HalfOpenProbes = 3
	}
	for name, p := range cfg.Providers {
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = 30
			cfg.Providers[name] = p
		}
	}
}
