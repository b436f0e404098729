package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PageRange is a half-open span of listing pages, [Start, End).
type PageRange struct {
	Start int
	End   int
}

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Reported by GET /health. LocationName falls back to the Meevo location
	// id, then to "unconfigured".
	ServiceName  string
	LocationName string

	// Meevo public API
	MeevoAuthURL      string
	MeevoAPIURL       string
	MeevoClientID     string
	MeevoClientSecret string
	MeevoTenantID     string
	MeevoLocationID   string
	LocationTimezone  string
	HTTPTimeout       time.Duration

	// Token cache. Redis is optional; an empty address keeps the token in memory.
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	TokenCacheKey    string
	TokenRefreshSkew time.Duration

	// Client search
	SearchPagesPerBatch int
	SearchItemsPerPage  int
	SearchMaxBatches    int
	SearchPageTimeout   time.Duration
	PageConcurrency     int

	// Linked profile discovery
	LinkedRanges        []PageRange
	LinkedPageBatch     int
	LinkedEmptyStreak   int
	LinkedPageTimeout   time.Duration
	LinkedDetailBatch   int
	LinkedDetailTimeout time.Duration
	DetailConcurrency   int

	// Appointments
	AppointmentTimeout time.Duration

	// Inbound rate limiting, per client IP. Zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

// DefaultLinkedRanges searches the most recently created clients first.
var DefaultLinkedRanges = []PageRange{
	{Start: 150, End: 200},
	{Start: 100, End: 150},
	{Start: 50, End: 100},
	{Start: 1, End: 50},
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ServiceName:  getEnv("SERVICE_NAME", "Lookup Appointment"),
		LocationName: getEnv("LOCATION_NAME", getEnv("MEEVO_LOCATION_ID", "unconfigured")),

		MeevoAuthURL:      getEnv("MEEVO_AUTH_URL", "https://marketplace.meevo.com/oauth2/token"),
		MeevoAPIURL:       getEnv("MEEVO_API_URL", "https://na1pub.meevo.com/publicapi/v1"),
		MeevoClientID:     getEnv("MEEVO_CLIENT_ID", ""),
		MeevoClientSecret: getEnv("MEEVO_CLIENT_SECRET", ""),
		MeevoTenantID:     getEnv("MEEVO_TENANT_ID", ""),
		MeevoLocationID:   getEnv("MEEVO_LOCATION_ID", ""),
		LocationTimezone:  getEnv("LOCATION_TIMEZONE", "America/Phoenix"),
		HTTPTimeout:       getEnvAsDuration("MEEVO_HTTP_TIMEOUT", 20*time.Second),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		TokenCacheKey:    getEnv("TOKEN_CACHE_KEY", "meevo:access_token"),
		TokenRefreshSkew: getEnvAsDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),

		SearchPagesPerBatch: getEnvAsInt("SEARCH_PAGES_PER_BATCH", 10),
		SearchItemsPerPage:  getEnvAsInt("SEARCH_ITEMS_PER_PAGE", 100),
		SearchMaxBatches:    getEnvAsInt("SEARCH_MAX_BATCHES", 20),
		SearchPageTimeout:   getEnvAsDuration("SEARCH_PAGE_TIMEOUT", 0),
		PageConcurrency:     getEnvAsInt("PAGE_CONCURRENCY", 10),

		LinkedRanges:        getEnvAsRanges("LINKED_PAGE_RANGES", DefaultLinkedRanges),
		LinkedPageBatch:     getEnvAsInt("LINKED_PAGE_BATCH", 10),
		LinkedEmptyStreak:   getEnvAsInt("LINKED_EMPTY_STREAK", 10),
		LinkedPageTimeout:   getEnvAsDuration("LINKED_PAGE_TIMEOUT", 3*time.Second),
		LinkedDetailBatch:   getEnvAsInt("LINKED_DETAIL_BATCH", 50),
		LinkedDetailTimeout: getEnvAsDuration("LINKED_DETAIL_TIMEOUT", 2*time.Second),
		DetailConcurrency:   getEnvAsInt("DETAIL_CONCURRENCY", 50),

		AppointmentTimeout: getEnvAsDuration("APPOINTMENT_TIMEOUT", 5*time.Second),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsRanges parses "150-200,100-150" into page ranges. Any malformed
// entry discards the whole value in favour of the default.
func getEnvAsRanges(key string, defaultValue []PageRange) []PageRange {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	ranges, err := ParseRanges(valueStr)
	if err != nil {
		return defaultValue
	}
	return ranges
}

// ParseRanges parses a comma-separated list of "start-end" page ranges.
func ParseRanges(value string) ([]PageRange, error) {
	var ranges []PageRange
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("config: range %q: want start-end", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("config: range %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("config: range %q: %w", part, err)
		}
		if start < 1 || end <= start {
			return nil, fmt.Errorf("config: range %q: start must be >= 1 and below end", part)
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("config: no page ranges in %q", value)
	}
	return ranges, nil
}
