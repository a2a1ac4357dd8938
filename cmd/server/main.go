package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/replaycache/configs"
	"github.com/avatarctic/replaycache/internal/application/services"
	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
	"github.com/avatarctic/replaycache/internal/infrastructure/db"
	"github.com/avatarctic/replaycache/internal/infrastructure/health"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/middleware"
	"github.com/avatarctic/replaycache/internal/infrastructure/redis"
	"github.com/avatarctic/replaycache/internal/infrastructure/repositories"
)

const searchCacheNamespace = "search"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting replaycache...")

	// Initialize database (apply pool settings from config)
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	if err := database.Migrate(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations:", err)
	}

	// Redis is optional at startup: idempotency falls back to process memory
	// and the shared cache tier reports misses until it is reachable.
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unreachable at startup; continuing degraded")
	} else {
		logger.Info("Connected to Redis successfully")
	}
	defer redisClient.Close()

	// Cache tiers
	memoryTier := cache.Instrument(cache.NewMemoryCache(), "memory")
	redisTier := cache.Instrument(redis.NewRedisCache(redisClient, cfg.Cache.KeyPrefix, logger), "redis")
	durableTier := cache.Instrument(cache.NewDurableCache(repositories.NewKeyValueRepository(database), logger), "durable")

	documentCache := cache.NewCompositeCache(memoryTier, redisTier)
	searchCache := cache.NewCompositeCache(memoryTier, redisTier, durableTier)

	// Repositories
	documentRepo := repositories.NewCachingDocumentRepository(
		repositories.NewDocumentRepository(database, logger), documentCache, cfg.Cache.DocumentTTL)
	rateLimitRepo := repositories.NewRateLimitRedisRepository(redisClient)

	// Services
	searchFetcher := cache.NewFetcher[document.Document](searchCache, cache.FetcherConfig{
		Namespace: searchCacheNamespace,
		TTL:       cfg.Cache.SearchTTL,
		Coalesce:  cfg.Cache.CoalesceSearch,
	}, logger)
	documentService := services.NewDocumentService(documentRepo, searchFetcher, cfg.Cache.SearchPageSize, logger)

	redisChecker := health.NewRedisHealthChecker(redisClient)
	idempotencyService := services.NewIdempotencyService(
		// own prefix: the admin cache endpoints reach every key under Cache.KeyPrefix
		cache.Instrument(redis.NewRedisCache(redisClient, cfg.Idempotency.KeyPrefix, logger), "idempotency_redis"),
		redisChecker,
		cache.Instrument(cache.NewMemoryCache(), "idempotency_memory"),
		&services.IdempotencyServiceConfig{
			TTL:             cfg.Idempotency.TTL,
			CleanupInterval: cfg.Idempotency.CleanupInterval,
			ProbeTimeout:    cfg.Idempotency.ProbeTimeout,
		},
		logger,
	)

	var rateLimiterService ports.RateLimiterService
	if cfg.RateLimit.Enabled {
		rateLimiterService = services.NewRateLimiterService(rateLimitRepo, &services.RateLimiterConfig{
			DefaultRequestsPerMinute: cfg.RateLimit.DefaultRequestsPerMinute,
			BurstMultiplier:          cfg.RateLimit.BurstMultiplier,
			Window:                   cfg.RateLimit.Window,
			KeyPrefix:                cfg.RateLimit.KeyPrefix,
		}, logger)
	}

	hcSlice := []ports.HealthChecker{health.NewDBHealthChecker(database), redisChecker}

	// Create server configuration
	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
		JWTSecret:      cfg.JWT.Secret,
		JWTIssuer:      cfg.JWT.Issuer,
		Idempotency: middleware.IdempotencyOptions{
			TTL:        cfg.Idempotency.TTL,
			HeaderName: cfg.Idempotency.HeaderName,
			Required:   cfg.Idempotency.Required,
			Methods:    cfg.Idempotency.Methods,
		},
	}

	deps := httpserver.ServerDeps{
		DocumentService:    documentService,
		IdempotencyStore:   idempotencyService,
		RateLimiterService: rateLimiterService,
		AdminCache:         searchCache,
		HealthCheckers:     hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()
	idempotencyService.Start(appCtx)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Info("HTTP server stopped")
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	idempotencyService.Stop()

	logger.Info("Server exited")
}
