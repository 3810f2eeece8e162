package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/product_imports")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8099", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ExtractTimeout)
	assert.Equal(t, 5*time.Minute, cfg.BulkExtractTimeout)
	assert.Equal(t, 10000, cfg.DefaultMaxRecords)
	assert.Equal(t, 30*24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/product_imports")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("NORMALIZE_WORKERS", "16")
	t.Setenv("COLLECTOR_RATE_LIMIT", "2.5")
	t.Setenv("IDEMPOTENCY_TTL", "12h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://*.shop.example, https://admin.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 16, cfg.NormalizeWorkers)
	assert.Equal(t, 2.5, cfg.CollectorRateLimit)
	assert.Equal(t, 12*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"https://*.shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/product_imports")
	t.Setenv("NORMALIZE_WORKERS", "many")
	t.Setenv("EXTRACT_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NormalizeWorkers)
	assert.Equal(t, 30*time.Second, cfg.ExtractTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseURL:        "postgres://localhost/db",
			NormalizeWorkers:   4,
			ExtractTimeout:     time.Second,
			BulkExtractTimeout: time.Minute,
			IdempotencyTTL:     time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no database", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"zero workers", func(c *Config) { c.NormalizeWorkers = 0 }, "NORMALIZE_WORKERS"},
		{"negative timeout", func(c *Config) { c.ExtractTimeout = -time.Second }, "timeouts"},
		{"zero ttl", func(c *Config) { c.IdempotencyTTL = 0 }, "IDEMPOTENCY_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
