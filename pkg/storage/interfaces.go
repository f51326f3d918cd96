package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// ErrDuplicateRecord is returned when inserting a (manufacturer, period)
// pair that already exists.
var ErrDuplicateRecord = errors.New("duplicate registration record")

// Storage persists registration records and serves range queries. All
// implementations must be safe for concurrent use.
type Storage interface {
	// ReplaceYear atomically swaps every record for a calendar year with
	// the given set. Ingest uses this so a re-imported export never leaves
	// stale months behind.
	ReplaceYear(ctx context.Context, year int, records []registration.Record) error

	// InsertRecords appends records, rejecting duplicates of an existing
	// (manufacturer, period) pair with ErrDuplicateRecord.
	InsertRecords(ctx context.Context, records []registration.Record) error

	// Records returns all manufacturers' records in the inclusive period
	// range, ordered by manufacturer then period.
	Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error)

	// ManufacturerRecords returns one manufacturer's records in the
	// inclusive period range, chronologically ordered.
	ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error)

	// Manufacturers lists all known manufacturer names, sorted.
	Manufacturers(ctx context.Context) ([]string, error)

	// Bounds returns the earliest and latest stored periods; ok is false
	// when the store is empty.
	Bounds(ctx context.Context) (first, last registration.Period, ok bool, err error)

	// Snapshot materializes the full store as an in-memory Dataset for
	// the computation layer.
	Snapshot(ctx context.Context) (*registration.Dataset, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config selects and tunes the storage backend.
type Config struct {
	Type string // "memory", "sqlite", "postgres"

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Redis cache config (postgres backend only)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	CacheEnabled bool
	CacheTTL     map[string]time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		SQLitePath:       "vahan.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"records":       5 * time.Minute,
			"manufacturers": 15 * time.Minute,
			"bounds":        15 * time.Minute,
		},
	}
}
