package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/storage"
)

// Config holds all application configuration, loaded from VAHAN_* env vars.
type Config struct {
	Server        ServerConfig
	Ingest        IngestConfig
	Storage       storage.Config
	Export        ExportConfig
	Aggregator    AggregatorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Health/metrics server runs on its own port for k8s probes.
	HealthPort string
}

// IngestConfig holds CSV data source settings.
type IngestConfig struct {
	DataDir       string
	AliasFile     string
	WatchEnabled  bool
	WatchDebounce time.Duration
}

// ExportConfig holds the S3 report archiver settings.
type ExportConfig struct {
	ArchiveEnabled bool
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3Prefix       string
}

// AggregatorConfig holds the rollup job settings.
type AggregatorConfig struct {
	// Schedule is a cron expression; default refreshes nightly at 02:00.
	Schedule string
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig reads all configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Ingest:        loadIngestConfig(),
		Storage:       loadStorageConfig(),
		Export:        loadExportConfig(),
		Aggregator:    loadAggregatorConfig(),
		Observability: loadObservabilityConfig(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("VAHAN_HOST", "0.0.0.0"),
		Port:            getEnv("VAHAN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("VAHAN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("VAHAN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("VAHAN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("VAHAN_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     splitNonEmpty(getEnv("VAHAN_CORS_ORIGINS", "*")),
		HealthPort:      getEnv("VAHAN_HEALTH_PORT", "9090"),
	}
}

func loadIngestConfig() IngestConfig {
	return IngestConfig{
		DataDir:       getEnv("VAHAN_DATA_DIR", "./data"),
		AliasFile:     getEnv("VAHAN_ALIAS_FILE", ""),
		WatchEnabled:  getEnvBool("VAHAN_WATCH_ENABLED", true),
		WatchDebounce: getEnvDuration("VAHAN_WATCH_DEBOUNCE", 2*time.Second),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("VAHAN_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}
	if path := getEnv("VAHAN_SQLITE_PATH", ""); path != "" {
		cfg.SQLitePath = path
	}
	if pgURL := getEnv("VAHAN_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("VAHAN_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("VAHAN_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("VAHAN_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("VAHAN_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("VAHAN_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("VAHAN_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if maxRetries := getEnvInt("VAHAN_REDIS_MAX_RETRIES", 0); maxRetries > 0 {
		cfg.RedisMaxRetries = maxRetries
	}
	if poolSize := getEnvInt("VAHAN_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}
	if cacheEnabled := getEnv("VAHAN_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}

	return cfg
}

func loadExportConfig() ExportConfig {
	return ExportConfig{
		ArchiveEnabled: getEnvBool("VAHAN_ARCHIVE_ENABLED", false),
		S3Bucket:       getEnv("VAHAN_S3_BUCKET", ""),
		S3Region:       getEnv("VAHAN_S3_REGION", "ap-south-1"),
		S3Endpoint:     getEnv("VAHAN_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("VAHAN_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("VAHAN_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("VAHAN_S3_USE_PATH_STYLE", false),
		S3Prefix:       getEnv("VAHAN_S3_PREFIX", "reports"),
	}
}

func loadAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Schedule: getEnv("VAHAN_AGGREGATE_SCHEDULE", "0 2 * * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(strings.ToLower(getEnv("VAHAN_LOG_LEVEL", "info"))),
		MetricsEnabled:     getEnvBool("VAHAN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("VAHAN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("VAHAN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("VAHAN_OTEL_SERVICE_NAME", "vahan-metrics"),
		OTelServiceVersion: getEnv("VAHAN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("VAHAN_OTEL_INSECURE", true),
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	if c.Ingest.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	if c.Export.ArchiveEnabled && c.Export.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when archiving is enabled")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
