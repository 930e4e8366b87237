// Package config reads the service configuration from PIPEFILTER_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Catalog is a TOML file path or an s3://bucket/key URL. When empty the
	// catalog is read from DatabaseURL.
	Catalog     string // PIPEFILTER_CATALOG
	DatabaseURL string // PIPEFILTER_DATABASE_URL
	Filters     string // PIPEFILTER_FILTERS (required)

	HTTPAddr  string // PIPEFILTER_HTTP_ADDR (default ":8080")
	GRPCAddr  string // PIPEFILTER_GRPC_ADDR (default ":9090")
	NATSURL   string // PIPEFILTER_NATS_URL (optional, empty = no events)
	AuthToken string // PIPEFILTER_AUTH_TOKEN (optional, empty = auth disabled)

	S3Region   string // PIPEFILTER_S3_REGION (default "us-east-1")
	S3Endpoint string // PIPEFILTER_S3_ENDPOINT (custom endpoint for MinIO)

	NameConverter  string        // PIPEFILTER_NAME_CONVERTER ("identity" or "snake_case")
	LogLevel       slog.Level    // PIPEFILTER_LOG_LEVEL (default info)
	ReloadInterval time.Duration // PIPEFILTER_RELOAD_INTERVAL (default 0 = never)
}

func Load() (*Config, error) {
	c := &Config{
		Catalog:       os.Getenv("PIPEFILTER_CATALOG"),
		DatabaseURL:   os.Getenv("PIPEFILTER_DATABASE_URL"),
		Filters:       os.Getenv("PIPEFILTER_FILTERS"),
		HTTPAddr:      envOrDefault("PIPEFILTER_HTTP_ADDR", ":8080"),
		GRPCAddr:      envOrDefault("PIPEFILTER_GRPC_ADDR", ":9090"),
		NATSURL:       os.Getenv("PIPEFILTER_NATS_URL"),
		AuthToken:     os.Getenv("PIPEFILTER_AUTH_TOKEN"),
		S3Region:      envOrDefault("PIPEFILTER_S3_REGION", "us-east-1"),
		S3Endpoint:    os.Getenv("PIPEFILTER_S3_ENDPOINT"),
		NameConverter: envOrDefault("PIPEFILTER_NAME_CONVERTER", "identity"),
	}
	if c.Filters == "" {
		return nil, fmt.Errorf("PIPEFILTER_FILTERS is required")
	}
	if c.Catalog == "" && c.DatabaseURL == "" {
		return nil, fmt.Errorf("one of PIPEFILTER_CATALOG or PIPEFILTER_DATABASE_URL is required")
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("PIPEFILTER_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("PIPEFILTER_LOG_LEVEL: %w", err)
	}

	if s := os.Getenv("PIPEFILTER_RELOAD_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("PIPEFILTER_RELOAD_INTERVAL: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("PIPEFILTER_RELOAD_INTERVAL: negative duration %s", d)
		}
		c.ReloadInterval = d
	}
	return c, nil
}

// CatalogFromS3 reports whether the catalog is an S3 object.
func (c *Config) CatalogFromS3() bool {
	return strings.HasPrefix(c.Catalog, "s3://")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
