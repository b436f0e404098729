package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/appointment-lookup/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/appointment-lookup/internal/http/middleware"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	LookupHandler  *handlers.LookupHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler http.Handler

	// RateLimitRPS enables per-IP limiting on /lookup when positive.
	RateLimitRPS   float64
	RateLimitBurst int
	// Done stops background work owned by the router, such as rate limiter eviction.
	Done <-chan struct{}
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(tools chi.Router) {
		if cfg.RateLimitRPS > 0 {
			tools.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Done))
		}
		if cfg.LookupHandler != nil {
			tools.Post("/lookup", cfg.LookupHandler.Lookup)
		}
	})

	return r
}
