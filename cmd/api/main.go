package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/appointment-lookup/internal/api/router"
	"github.com/wolfman30/appointment-lookup/internal/app/bootstrap"
	appconfig "github.com/wolfman30/appointment-lookup/internal/config"
	"github.com/wolfman30/appointment-lookup/internal/http/handlers"
	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

func main() {
	// A missing .env is fine; deployed environments set variables directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment lookup server",
		"env", cfg.Env,
		"port", cfg.Port,
		"location", cfg.LocationName,
	)

	metricsHandler, lookupMetrics := setupMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	cancel()
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("sharing meevo token through redis", "key", cfg.TokenCacheKey)
	}
	tokenStore := bootstrap.BuildTokenStore(redisClient, cfg)

	lookupService, err := bootstrap.BuildLookupService(cfg, tokenStore, lookupMetrics, logger)
	if err != nil {
		logger.Error("failed to build lookup service", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		LookupHandler:  handlers.NewLookupHandler(lookupService, lookupMetrics, logger),
		HealthHandler:  handlers.NewHealthHandler(cfg.Env, cfg.LocationName, cfg.ServiceName),
		MetricsHandler: metricsHandler,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Done:           done,
	})

	// Create HTTP server. Lookups can walk hundreds of upstream pages, so the
	// write timeout sits well above the typical search time.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(done)

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers lookup metrics with runtime collectors on a
// dedicated registry.
func setupMetrics() (http.Handler, *metrics.LookupMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewLookupMetrics(reg)
}
