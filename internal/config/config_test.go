package config

import (
	"testing"
	"time"
)

// exportEnvVars lists all export-related env vars that must be cleared between tests.
var exportEnvVars = []string{
	"ROWSTORE_EXPORT_S3_BUCKET", "ROWSTORE_EXPORT_S3_ENDPOINT",
	"ROWSTORE_EXPORT_S3_REGION", "ROWSTORE_EXPORT_S3_PREFIX",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ROWSTORE_URL", "ROWSTORE_TOKEN", "ROWSTORE_CONTAINER", "ROWSTORE_TIMEOUT", "ROWSTORE_NATS_URL"} {
		t.Setenv(key, "")
	}
	for _, key := range exportEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name          string
		env           map[string]string
		wantErr       bool
		wantURL       string
		wantContainer string
		wantTimeout   time.Duration
		wantNATSURL   string
	}{
		{
			name:          "Defaults",
			env:           map[string]string{},
			wantContainer: "/",
			wantTimeout:   30 * time.Second,
		},
		{
			name: "Custom",
			env: map[string]string{
				"ROWSTORE_URL":       "http://localhost:8080/labkey",
				"ROWSTORE_CONTAINER": "/home/Project",
				"ROWSTORE_TIMEOUT":   "5s",
				"ROWSTORE_NATS_URL":  "nats://localhost:4222",
			},
			wantURL:       "http://localhost:8080/labkey",
			wantContainer: "/home/Project",
			wantTimeout:   5 * time.Second,
			wantNATSURL:   "nats://localhost:4222",
		},
		{
			name:    "InvalidTimeout",
			env:     map[string]string{"ROWSTORE_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "NegativeTimeout",
			env:     map[string]string{"ROWSTORE_TIMEOUT": "-1s"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.URL != tc.wantURL {
				t.Errorf("URL = %q, want %q", cfg.URL, tc.wantURL)
			}
			if cfg.Container != tc.wantContainer {
				t.Errorf("Container = %q, want %q", cfg.Container, tc.wantContainer)
			}
			if cfg.Timeout != tc.wantTimeout {
				t.Errorf("Timeout = %v, want %v", cfg.Timeout, tc.wantTimeout)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoad_ExportDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExportS3Bucket != "" {
		t.Errorf("ExportS3Bucket = %q, want empty", cfg.ExportS3Bucket)
	}
	if cfg.ExportS3Region != "us-east-1" {
		t.Errorf("ExportS3Region = %q, want us-east-1", cfg.ExportS3Region)
	}
	if cfg.ExportS3Prefix != "exports/" {
		t.Errorf("ExportS3Prefix = %q, want exports/", cfg.ExportS3Prefix)
	}
}

func TestLoad_ExportS3(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("ROWSTORE_EXPORT_S3_BUCKET", "reports")
	t.Setenv("ROWSTORE_EXPORT_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ROWSTORE_EXPORT_S3_REGION", "eu-west-1")
	t.Setenv("ROWSTORE_EXPORT_S3_PREFIX", "nightly/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExportS3Bucket != "reports" || cfg.ExportS3Endpoint != "http://minio:9000" {
		t.Errorf("bucket/endpoint = %q/%q", cfg.ExportS3Bucket, cfg.ExportS3Endpoint)
	}
	if cfg.ExportS3Region != "eu-west-1" || cfg.ExportS3Prefix != "nightly/" {
		t.Errorf("region/prefix = %q/%q", cfg.ExportS3Region, cfg.ExportS3Prefix)
	}
}

func TestLoad_Token(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("ROWSTORE_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q, want secret", cfg.Token)
	}
}
