package config

import (
	"testing"
	"time"

	"github.com/vahanmetrics/vahan/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("HealthPort = %s", cfg.Server.HealthPort)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %s", cfg.Storage.Type)
	}
	if cfg.Ingest.DataDir != "./data" {
		t.Errorf("DataDir = %s", cfg.Ingest.DataDir)
	}
	if !cfg.Ingest.WatchEnabled {
		t.Error("WatchEnabled = false")
	}
	if cfg.Aggregator.Schedule != "0 2 * * *" {
		t.Errorf("Schedule = %s", cfg.Aggregator.Schedule)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.OTelEnabled {
		t.Error("OTel enabled by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("VAHAN_PORT", "8181")
	t.Setenv("VAHAN_STORAGE_TYPE", "sqlite")
	t.Setenv("VAHAN_SQLITE_PATH", "/var/lib/vahan/vahan.db")
	t.Setenv("VAHAN_DATA_DIR", "/srv/vahan/data")
	t.Setenv("VAHAN_LOG_LEVEL", "debug")
	t.Setenv("VAHAN_WATCH_DEBOUNCE", "500ms")
	t.Setenv("VAHAN_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8181" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLitePath != "/var/lib/vahan/vahan.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Ingest.DataDir != "/srv/vahan/data" {
		t.Errorf("DataDir = %s", cfg.Ingest.DataDir)
	}
	if cfg.Ingest.WatchDebounce != 500*time.Millisecond {
		t.Errorf("WatchDebounce = %v", cfg.Ingest.WatchDebounce)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]map[string]string{
		"same ports":          {"VAHAN_HEALTH_PORT": "8080"},
		"unknown storage":     {"VAHAN_STORAGE_TYPE": "etcd"},
		"postgres without url": {"VAHAN_STORAGE_TYPE": "postgres"},
		"archive without bucket": {"VAHAN_ARCHIVE_ENABLED": "true"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
