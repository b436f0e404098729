package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"
	// Containers often ship without a zoneinfo database.
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/appointment-lookup/internal/config"
	"github.com/wolfman30/appointment-lookup/internal/lookup"
	"github.com/wolfman30/appointment-lookup/internal/meevo"
	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, caching token in memory", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildTokenStore shares the access token through Redis when a client is
// available so every replica reuses one token.
func BuildTokenStore(client *redis.Client, cfg *appconfig.Config) meevo.TokenStore {
	if client == nil || cfg == nil {
		return meevo.NewMemoryTokenStore()
	}
	return meevo.NewRedisTokenStore(client, cfg.TokenCacheKey)
}

// BuildMeevoClient wires the token provider and the REST client.
func BuildMeevoClient(cfg *appconfig.Config, store meevo.TokenStore, m *metrics.LookupMetrics, logger *logging.Logger) (*meevo.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	tokens, err := meevo.NewTokenProvider(meevo.TokenProviderConfig{
		AuthURL:      cfg.MeevoAuthURL,
		ClientID:     cfg.MeevoClientID,
		ClientSecret: cfg.MeevoClientSecret,
		RefreshSkew:  cfg.TokenRefreshSkew,
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		Store:        store,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: token provider: %w", err)
	}
	client, err := meevo.New(meevo.Config{
		BaseURL:    cfg.MeevoAPIURL,
		TenantID:   cfg.MeevoTenantID,
		LocationID: cfg.MeevoLocationID,
		Timeout:    cfg.HTTPTimeout,
	}, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: meevo client: %w", err)
	}
	return client, nil
}

// LookupOptions maps configuration onto the search budget.
func LookupOptions(cfg *appconfig.Config) (lookup.Options, error) {
	loc, err := time.LoadLocation(cfg.LocationTimezone)
	if err != nil {
		return lookup.Options{}, fmt.Errorf("bootstrap: location timezone %q: %w", cfg.LocationTimezone, err)
	}
	ranges := make([]lookup.PageRange, 0, len(cfg.LinkedRanges))
	for _, r := range cfg.LinkedRanges {
		ranges = append(ranges, lookup.PageRange{Start: r.Start, End: r.End})
	}
	return lookup.Options{
		PagesPerBatch:      cfg.SearchPagesPerBatch,
		ItemsPerPage:       cfg.SearchItemsPerPage,
		MaxBatches:         cfg.SearchMaxBatches,
		SearchPageTimeout:  cfg.SearchPageTimeout,
		PageConcurrency:    cfg.PageConcurrency,
		LinkedRanges:       ranges,
		LinkedPageBatch:    cfg.LinkedPageBatch,
		EmptyPageStreak:    cfg.LinkedEmptyStreak,
		LinkedPageTimeout:  cfg.LinkedPageTimeout,
		DetailBatch:        cfg.LinkedDetailBatch,
		DetailTimeout:      cfg.LinkedDetailTimeout,
		DetailConcurrency:  cfg.DetailConcurrency,
		AppointmentTimeout: cfg.AppointmentTimeout,
		Location:           loc,
	}, nil
}

// BuildLookupService wires the Meevo client and the lookup service.
func BuildLookupService(cfg *appconfig.Config, store meevo.TokenStore, m *metrics.LookupMetrics, logger *logging.Logger) (*lookup.Service, error) {
	client, err := BuildMeevoClient(cfg, store, m, logger)
	if err != nil {
		return nil, err
	}
	opts, err := LookupOptions(cfg)
	if err != nil {
		return nil, err
	}
	return lookup.NewService(client, opts, m, logger), nil
}
