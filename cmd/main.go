package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"product-import-service/internal/adapters"
	"product-import-service/internal/clients"
	"product-import-service/internal/config"
	"product-import-service/internal/database"
	"product-import-service/internal/events"
	"product-import-service/internal/handlers"
	"product-import-service/internal/idempotency"
	"product-import-service/internal/middleware"
	"product-import-service/internal/repository"
	"product-import-service/internal/secrets"
	"product-import-service/internal/services"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if !cfg.IsProduction() {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Warn("Auto-migration failed")
	} else {
		logger.Info("Database models migrated")
	}

	// Resolve collector credentials, preferring GCP Secret Manager
	collectorKey := cfg.CollectorAPIKey
	if cfg.GCPProjectID != "" && collectorKey == "" {
		collectorKey = loadCollectorKey(cfg, logger)
	}

	collector := clients.NewHTTPCollector(clients.HTTPCollectorConfig{
		BaseURL:          cfg.CollectorBaseURL,
		APIKey:           collectorKey,
		RequestsPerSec:   cfg.CollectorRateLimit,
		Timeout:          cfg.CollectorTimeout,
		Retry:            clients.DefaultRetryConfig(),
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Idempotency store: Redis when configured, in-process otherwise
	store := newIdempotencyStore(ctx, cfg, logger)
	defer store.Close()
	guard := idempotency.NewGuardWithConfig(store, idempotency.GuardConfig{
		TTL:   cfg.IdempotencyTTL,
		Lease: 2 * cfg.BulkExtractTimeout,
	}, logger)

	// Import events are optional
	var publisher services.EventPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, import events disabled")
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
			logger.Info("NATS event publisher initialized")
		}
	}

	importService := services.NewImportService(
		adapters.NewDefaultRegistry(collector),
		repository.NewJobRepository(db),
		guard,
		publisher,
		&services.ImportConfig{
			ExtractTimeout:     cfg.ExtractTimeout,
			BulkExtractTimeout: cfg.BulkExtractTimeout,
			NormalizeWorkers:   cfg.NormalizeWorkers,
			DefaultMaxRecords:  cfg.DefaultMaxRecords,
			Concurrency: &services.ExtractionConcurrencyConfig{
				MaxConcurrentPerFamily: cfg.MaxConcurrentExtraction,
				QueueTimeout:           2 * time.Minute,
			},
		},
		logger,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, db, logger, importService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
		}).Info("Product Import Service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	stop()

	logger.Info("Server exited")
}

func loadCollectorKey(cfg *config.Config, logger *logrus.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secretManager, err := secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize GCP Secret Manager")
		return ""
	}
	defer secretManager.Close()

	secret, err := secretManager.GetCollectorSecret(ctx, cfg.CollectorSecretName)
	if err != nil {
		logger.WithError(err).WithField("secret", cfg.CollectorSecretName).Warn("Failed to load collector credentials")
		return ""
	}
	if secret.BaseURL != "" && cfg.CollectorBaseURL == "" {
		cfg.CollectorBaseURL = secret.BaseURL
	}
	logger.Info("Collector credentials loaded from GCP Secret Manager")
	return secret.APIKey
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) idempotency.Store {
	if cfg.RedisURL != "" {
		store, err := idempotency.NewRedisStore(cfg.RedisURL)
		if err == nil {
			logger.Info("Redis idempotency store initialized")
			return store
		}
		logger.WithError(err).Warn("Failed to connect to Redis, using in-memory idempotency store")
	}

	store := idempotency.NewMemoryStore()
	store.StartSweeper(ctx, cfg.IdempotencySweepInterval)
	return store
}

// setupRouter configures the HTTP router
func setupRouter(cfg *config.Config, db *gorm.DB, logger *logrus.Logger, importService *services.ImportService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	healthHandler := handlers.NewHealthHandler(db)
	importHandler := handlers.NewImportHandler(importService)

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BodyLimit(cfg.MaxUploadSize))
	{
		imports := v1.Group("/imports")
		{
			imports.POST("", importHandler.Import)
			imports.POST("/url", importHandler.ImportURL)
			imports.POST("/csv", importHandler.ImportCSV)
			imports.POST("/extension", importHandler.ImportExtension)
			imports.GET("/sources", importHandler.Sources)
			imports.GET("/history", importHandler.History)
			imports.GET("/stats", importHandler.Stats)
			imports.POST("/jobs/:id/cancel", importHandler.CancelJob)
			imports.POST("/jobs/:id/retry", importHandler.RetryJob)
		}
	}

	return router
}
