package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary YAML config file with known values.
	// t.TempDir() gives us a directory that's auto-deleted after the test.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

providers:
  gemini:
    enabled: true
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    default_model: gemini-1.5-flash
    priority: 20
    models:
      - model-a
      - model-b

routing:
  fallback_enabled: true
  max_retries: 3
  retry_delay_ms: 500

rate_limit:
  enabled: true
  requests_per_minute: 120

cache:
  enabled: true
  ttl_seconds: 120
`
	// os.WriteFile writes a byte slice to a file. The 0644 is the Unix file
	// permission (owner read/write, group and others read-only).
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err) // require stops the test immediately if this fails

	// Set the environment variable that ${TEST_API_KEY} should resolve to.
	// t.Setenv auto-restores the original value when the test finishes.
	t.Setenv("TEST_API_KEY", "my-secret-key")

	// Load the config.
	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Assert server config values.
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	// Assert provider config values.
	gemini, ok := cfg.Providers["gemini"]
	assert.True(t, ok, "gemini provider should exist")
	assert.True(t, gemini.Enabled)
	assert.Equal(t, "my-secret-key", gemini.APIKey)
	assert.Equal(t, "https://example.com/v1", gemini.BaseURL)
	assert.Equal(t, []string{"model-a", "model-b"}, gemini.Models)
	assert.Equal(t, 30, gemini.TimeoutSeconds, "unset timeout should get the default")

	// Assert routing/rate-limit/cache values.
	assert.True(t, cfg.Routing.FallbackEnabled)
	assert.Equal(t, 3, cfg.Routing.MaxRetries)
	assert.Equal(t, 500, cfg.Routing.RetryDelayMs)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 120, cfg.Cache.TTLSeconds)
}

func TestLoadEnvOverride(t *testing.T) {
	// Verify that AIGATEWAY_ env vars override YAML values.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// This should override server.port from 8080 to 3000.
	t.Setenv("AIGATEWAY_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Routing.MaxRetries)
	assert.Equal(t, 1000, cfg.Routing.RetryDelayMs)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 0.5, cfg.Breaker.FailureRatio)
	assert.Equal(t, 5, cfg.Breaker.MinRequests)
	assert.Equal(t, 3, cfg.Breaker.HalfOpenProbes)
}
