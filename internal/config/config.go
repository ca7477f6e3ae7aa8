// Package config reads rowstore settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	URL       string        // ROWSTORE_URL (optional here; the CLI falls back to the active remote)
	Token     string        // ROWSTORE_TOKEN (optional, empty = no Authorization header)
	Container string        // ROWSTORE_CONTAINER (default "/")
	Timeout   time.Duration // ROWSTORE_TIMEOUT (default 30s; applied per request)
	NATSURL   string        // ROWSTORE_NATS_URL (optional, empty = no events)

	// Export settings
	ExportS3Bucket   string // ROWSTORE_EXPORT_S3_BUCKET (enables S3 exports when set)
	ExportS3Endpoint string // ROWSTORE_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string // ROWSTORE_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Prefix   string // ROWSTORE_EXPORT_S3_PREFIX (default "exports/")
}

func Load() (*Config, error) {
	c := &Config{
		URL:              os.Getenv("ROWSTORE_URL"),
		Token:            os.Getenv("ROWSTORE_TOKEN"),
		Container:        envOrDefault("ROWSTORE_CONTAINER", "/"),
		NATSURL:          os.Getenv("ROWSTORE_NATS_URL"),
		ExportS3Bucket:   os.Getenv("ROWSTORE_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("ROWSTORE_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("ROWSTORE_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Prefix:   envOrDefault("ROWSTORE_EXPORT_S3_PREFIX", "exports/"),
	}

	d, err := time.ParseDuration(envOrDefault("ROWSTORE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("ROWSTORE_TIMEOUT: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("ROWSTORE_TIMEOUT: must not be negative, got %s", d)
	}
	c.Timeout = d

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
