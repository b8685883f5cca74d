// Package main is the entry point for the roster API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/openlearn/engage/internal/api"
	"github.com/openlearn/engage/internal/auth"
	"github.com/openlearn/engage/internal/config"
	"github.com/openlearn/engage/internal/health"
	"github.com/openlearn/engage/internal/middleware"
	"github.com/openlearn/engage/internal/roster"
	"github.com/openlearn/engage/internal/tracing"
)

const serviceName = "engage-rosterd"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Engage Roster API Server")
		fmt.Println()
		fmt.Println("Usage: rosterd [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	errs = append(errs, cfg.ValidateServer()...)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// Tracing
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Warehouse database
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	checkers := map[string]health.Checker{
		"database": health.NewDBChecker(db),
	}

	// Redis is optional; with it, rate limit counters survive restarts
	var rateLimitStore middleware.RateLimitStore
	httpMetrics := middleware.NewMetrics()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		checkers["redis"] = health.NewRedisChecker(client)
		rateLimitStore = middleware.NewRedisRateLimitStore(client, httpMetrics, logger)
	} else {
		store := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				store.Cleanup()
			}
		}()
		rateLimitStore = store
	}

	registry := prometheus.NewRegistry()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	handler := api.NewRouter(api.RouterConfig{
		Store:          roster.NewPostgresStore(db, logger),
		JWTService:     auth.NewJWTService(cfg.JWTSecret),
		InternalToken:  cfg.InternalToken,
		Registry:       registry,
		Logger:         logger,
		Health:         health.NewHandler(checkers, logger),
		HTTPMetrics:    httpMetrics,
		RateLimitStore: rateLimitStore,
		ServiceName:    serviceName,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
