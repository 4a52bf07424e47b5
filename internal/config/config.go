package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultNesoURL        = "https://api.neso.energy/api/3/action/datastore_search_sql"
	defaultNesoResource   = "b2bde559-3455-4021-b179-dfe60c0337b0"
	defaultCarbonURL      = "https://api.carbonintensity.org.uk"
	defaultOpenMeteoURL   = "https://archive-api.open-meteo.com/v1/archive"
	defaultCacheTTL       = 5 * time.Minute
	defaultSourceTimeout  = 2 * time.Minute
	defaultRequestTimeout = 30 * time.Second
	defaultPageSize       = 1000
	defaultPort           = 8080
)

// Config holds runtime configuration for the dashboard backend.
type Config struct {
	DatabaseURL string
	Port        int
	BearerToken string

	NesoURL      string
	NesoResource string
	CarbonURL    string
	OpenMeteoURL string

	// CacheTTL bounds how long a query result may be served without
	// recomputation.
	CacheTTL time.Duration
	// SourceTimeout bounds one family's fetch during a refresh cycle.
	SourceTimeout time.Duration
	// RequestTimeout bounds a single outbound HTTP request.
	RequestTimeout time.Duration
	// PageSize is the store's internal read page size.
	PageSize int
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		NesoURL:        defaultNesoURL,
		NesoResource:   defaultNesoResource,
		CarbonURL:      defaultCarbonURL,
		OpenMeteoURL:   defaultOpenMeteoURL,
		CacheTTL:       defaultCacheTTL,
		SourceTimeout:  defaultSourceTimeout,
		RequestTimeout: defaultRequestTimeout,
		PageSize:       defaultPageSize,
		Port:           defaultPort,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return cfg, fmt.Errorf("invalid PORT: %s", v)
		}
		cfg.Port = port
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")

	if v := strings.TrimSpace(os.Getenv("NESO_SQL_URL")); v != "" {
		cfg.NesoURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NESO_RESOURCE_ID")); v != "" {
		cfg.NesoResource = v
	}
	if v := strings.TrimSpace(os.Getenv("CARBON_API_URL")); v != "" {
		cfg.CarbonURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPEN_METEO_URL")); v != "" {
		cfg.OpenMeteoURL = v
	}

	if v := strings.TrimSpace(os.Getenv("CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}

	if v := strings.TrimSpace(os.Getenv("SOURCE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SOURCE_TIMEOUT: %w", err)
		}
		cfg.SourceTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("STORE_PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid STORE_PAGE_SIZE: %s", v)
		}
		cfg.PageSize = n
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
