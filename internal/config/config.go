package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the product import service
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Redis (idempotency store). Empty keeps results in memory.
	RedisURL string

	// NATS (import events). Empty disables publishing.
	NATSURL string

	// GCP
	GCPProjectID string

	// Collector
	CollectorBaseURL    string
	CollectorAPIKey     string
	CollectorSecretName string
	CollectorRateLimit  float64 // requests per second
	CollectorTimeout    time.Duration

	// Import pipeline
	ExtractTimeout          time.Duration
	BulkExtractTimeout      time.Duration
	NormalizeWorkers        int
	MaxConcurrentExtraction int
	DefaultMaxRecords       int

	// Idempotency
	IdempotencyTTL           time.Duration
	IdempotencySweepInterval time.Duration

	// HTTP
	MaxUploadSize      int64
	CORSAllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Build DATABASE_URL from components using GCP Secret Manager for password
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := secrets.GetDBPassword()
		dbName := getEnv("DB_NAME", "product_imports")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8099"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,
		RedisURL:    getEnv("REDIS_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),

		// GCP
		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),

		// Collector
		CollectorBaseURL:    getEnv("COLLECTOR_BASE_URL", ""),
		CollectorAPIKey:     getEnv("COLLECTOR_API_KEY", ""),
		CollectorSecretName: getEnv("COLLECTOR_SECRET_NAME", "product-import-collector-api-key"),
		CollectorRateLimit:  getEnvAsFloat("COLLECTOR_RATE_LIMIT", 5),
		CollectorTimeout:    getEnvAsDuration("COLLECTOR_TIMEOUT", 60*time.Second),

		// Import pipeline
		ExtractTimeout:          getEnvAsDuration("EXTRACT_TIMEOUT", 30*time.Second),
		BulkExtractTimeout:      getEnvAsDuration("BULK_EXTRACT_TIMEOUT", 5*time.Minute),
		NormalizeWorkers:        getEnvAsInt("NORMALIZE_WORKERS", 8),
		MaxConcurrentExtraction: getEnvAsInt("MAX_CONCURRENT_EXTRACTIONS", 4),
		DefaultMaxRecords:       getEnvAsInt("DEFAULT_MAX_RECORDS", 10000),

		// Idempotency
		IdempotencyTTL:           getEnvAsDuration("IDEMPOTENCY_TTL", 30*24*time.Hour),
		IdempotencySweepInterval: getEnvAsDuration("IDEMPOTENCY_SWEEP_INTERVAL", time.Hour),

		// HTTP
		MaxUploadSize:      int64(getEnvAsInt("MAX_UPLOAD_SIZE", 20<<20)),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.GCPProjectID == "" {
		logrus.Warn("GCP_PROJECT_ID not set, secrets management will be disabled")
	}
	if config.CollectorBaseURL == "" {
		logrus.Warn("COLLECTOR_BASE_URL not set, only inline and file imports will succeed")
	}

	return config, nil
}

// Validate checks the values that cannot fall back to a default
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.NormalizeWorkers <= 0 {
		return fmt.Errorf("NORMALIZE_WORKERS must be positive, got %d", c.NormalizeWorkers)
	}
	if c.ExtractTimeout <= 0 || c.BulkExtractTimeout <= 0 {
		return fmt.Errorf("extraction timeouts must be positive")
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvAsList splits a comma-separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
