package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"serpgap/internal/api"
	"serpgap/internal/api/middleware"
	"serpgap/internal/apify"
	"serpgap/internal/config"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
	"serpgap/internal/scheduler"
	"serpgap/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database (runs migrations when database.auto_migrate is set)
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	analysisRepo := repository.NewAnalysisLogRepository(db)

	// Initialize remote job client
	apifyClient := apify.NewClient(apify.Config{
		BaseURL:            cfg.Apify.BaseURL,
		SerpActorID:        cfg.Apify.SerpActorID,
		MetricsActorID:     cfg.Apify.MetricsActorID,
		PollInterval:       cfg.Apify.PollInterval,
		MaxPollAttempts:    cfg.Apify.MaxPollAttempts,
		DatasetSettleDelay: cfg.Apify.DatasetSettleDelay,
		MaxDatasetAttempts: cfg.Apify.MaxDatasetAttempts,
		RequestTimeout:     cfg.Apify.RequestTimeout,
	})

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, appLogger)
	credentialService := service.NewCredentialService(credentialRepo, appLogger)
	credentialPool := service.NewCredentialPool(credentialRepo, appLogger)
	analysisService := service.NewAnalysisService(credentialPool, analysisRepo, apifyClient, appLogger, &service.AnalysisConfig{
		Strategy:   service.Strategy(cfg.Analysis.Strategy),
		BatchSize:  cfg.Analysis.BatchSize,
		MaxRetries: cfg.Analysis.MaxRetries,
		Decision: service.DecisionConfig{
			MinLowAuthorityCount: cfg.Analysis.MinLowAuthorityCount,
			TopNDomains:          cfg.Analysis.TopNDomains,
			AuthorityThreshold:   cfg.Analysis.AuthorityThreshold,
		},
	})

	// Initialize webhook rate limiter
	var limiter middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RedisAddr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr: cfg.RateLimit.RedisAddr,
				DB:   cfg.RateLimit.RedisDB,
			})
			limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			appLogger.Infof("Rate limiting enabled: backend=redis, addr=%s", cfg.RateLimit.RedisAddr)
		} else {
			limiter = middleware.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			appLogger.Infof("Rate limiting enabled: backend=memory")
		}
	}

	// Start credential cooldown scheduler
	if cfg.Scheduler.Enabled {
		cooldown := scheduler.NewCooldownScheduler(
			credentialRepo,
			cfg.Scheduler.CooldownSpec,
			cfg.Scheduler.CredentialCooldown,
			appLogger,
		)
		if err := cooldown.Start(); err != nil {
			appLogger.Fatalf("Failed to start cooldown scheduler: %v", err)
		}
		defer cooldown.Stop()
	}

	// Setup router
	router := api.SetupRouter(
		api.Services{
			Auth:       authService,
			Analysis:   analysisService,
			Credential: credentialService,
		},
		limiter,
		appLogger,
		cfg.Server.Mode,
		middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.Infof("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}
