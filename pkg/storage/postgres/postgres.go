// Package postgres implements the production storage backend on PostgreSQL,
// optionally fronted by a Redis read cache.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // also registers the "postgres" driver
	"github.com/vahanmetrics/vahan/pkg/registration"
	"github.com/vahanmetrics/vahan/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	manufacturer TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	count BIGINT NOT NULL CHECK (count >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (manufacturer, year, month)
);
CREATE INDEX IF NOT EXISTS idx_registrations_period ON registrations (year, month);

CREATE TABLE IF NOT EXISTS registrations_quarterly (
	manufacturer TEXT NOT NULL,
	year INTEGER NOT NULL,
	quarter INTEGER NOT NULL CHECK (quarter BETWEEN 1 AND 4),
	count BIGINT NOT NULL,
	qoq_growth DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (manufacturer, year, quarter)
);

CREATE TABLE IF NOT EXISTS registrations_yearly (
	manufacturer TEXT NOT NULL,
	year INTEGER NOT NULL,
	count BIGINT NOT NULL,
	yoy_growth DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (manufacturer, year)
);
`

// PostgresStorage is the PostgreSQL Storage implementation.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects to PostgreSQL, configures the pool per cfg and
// bootstraps the schema.
func NewPostgresStorage(cfg storage.Config) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// NewPostgresStorageFromDB wraps an existing connection without schema
// bootstrap. Used by tests and the aggregator binary.
func NewPostgresStorageFromDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// DB exposes the underlying pool for the aggregator and health checks.
func (p *PostgresStorage) DB() *sql.DB {
	return p.db
}

// ReplaceYear swaps all records for a year inside one transaction.
func (p *PostgresStorage) ReplaceYear(ctx context.Context, year int, records []registration.Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE year = $1`, year); err != nil {
		return fmt.Errorf("clear year %d: %w", year, err)
	}
	for _, rec := range records {
		if rec.Period.Year != year {
			return fmt.Errorf("record period %s outside year %d", rec.Period, year)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (manufacturer, year, month, count) VALUES ($1, $2, $3, $4)`,
			rec.Manufacturer, rec.Period.Year, int(rec.Period.Month), rec.Count,
		); err != nil {
			return fmt.Errorf("insert record %s/%s: %w", rec.Manufacturer, rec.Period, err)
		}
	}
	return tx.Commit()
}

// InsertRecords appends records; unique violations map to ErrDuplicateRecord.
func (p *PostgresStorage) InsertRecords(ctx context.Context, records []registration.Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (manufacturer, year, month, count) VALUES ($1, $2, $3, $4)`,
			rec.Manufacturer, rec.Period.Year, int(rec.Period.Month), rec.Count,
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return fmt.Errorf("%w: %s at %s", storage.ErrDuplicateRecord, rec.Manufacturer, rec.Period)
			}
			return fmt.Errorf("insert record %s/%s: %w", rec.Manufacturer, rec.Period, err)
		}
	}
	return tx.Commit()
}

// Records returns all records in the inclusive range.
func (p *PostgresStorage) Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT manufacturer, year, month, count
		FROM registrations
		WHERE (year * 100 + month) BETWEEN $1 AND $2
		ORDER BY manufacturer, year, month`,
		periodOrd(from), periodOrd(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ManufacturerRecords returns one manufacturer's records in the range.
func (p *PostgresStorage) ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT manufacturer, year, month, count
		FROM registrations
		WHERE manufacturer = $1 AND (year * 100 + month) BETWEEN $2 AND $3
		ORDER BY year, month`,
		manufacturer, periodOrd(from), periodOrd(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query manufacturer records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Manufacturers lists all names, sorted.
func (p *PostgresStorage) Manufacturers(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT manufacturer FROM registrations ORDER BY manufacturer`)
	if err != nil {
		return nil, fmt.Errorf("query manufacturers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Bounds returns the stored period range.
func (p *PostgresStorage) Bounds(ctx context.Context) (first, last registration.Period, ok bool, err error) {
	var minOrd, maxOrd sql.NullInt64
	err = p.db.QueryRowContext(ctx,
		`SELECT MIN(year * 100 + month), MAX(year * 100 + month) FROM registrations`,
	).Scan(&minOrd, &maxOrd)
	if err != nil {
		return registration.Period{}, registration.Period{}, false, fmt.Errorf("query bounds: %w", err)
	}
	if !minOrd.Valid || !maxOrd.Valid {
		return registration.Period{}, registration.Period{}, false, nil
	}
	return ordPeriod(minOrd.Int64), ordPeriod(maxOrd.Int64), true, nil
}

// Snapshot materializes the store as a Dataset.
func (p *PostgresStorage) Snapshot(ctx context.Context) (*registration.Dataset, error) {
	first, last, ok, err := p.Bounds(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return registration.NewDataset(nil, uuid.NewString())
	}
	records, err := p.Records(ctx, first, last)
	if err != nil {
		return nil, err
	}
	return registration.NewDataset(records, uuid.NewString())
}

// HealthCheck pings the database.
func (p *PostgresStorage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Close closes the pool.
func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

func periodOrd(p registration.Period) int {
	return p.Year*100 + int(p.Month)
}

func ordPeriod(ord int64) registration.Period {
	return registration.Period{Year: int(ord / 100), Month: time.Month(ord % 100)}
}

func scanRecords(rows *sql.Rows) ([]registration.Record, error) {
	var out []registration.Record
	for rows.Next() {
		var (
			name        string
			year, month int
			count       int64
		)
		if err := rows.Scan(&name, &year, &month, &count); err != nil {
			return nil, err
		}
		out = append(out, registration.Record{
			Manufacturer: name,
			Period:       registration.Period{Year: year, Month: time.Month(month)},
			Count:        count,
		})
	}
	return out, rows.Err()
}
