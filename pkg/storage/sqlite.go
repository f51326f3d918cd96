package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/vahanmetrics/vahan/pkg/registration"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS registrations (
	manufacturer TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	count INTEGER NOT NULL CHECK (count >= 0),
	PRIMARY KEY (manufacturer, year, month)
);
CREATE INDEX IF NOT EXISTS idx_registrations_period ON registrations (year, month);
`

// SQLiteStorage is an embedded single-file Storage backend.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) a sqlite database at path and
// bootstraps the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite handles a single writer; bounding the pool avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// ReplaceYear swaps all records for a year inside one transaction.
func (s *SQLiteStorage) ReplaceYear(ctx context.Context, year int, records []registration.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE year = ?`, year); err != nil {
		return fmt.Errorf("clear year %d: %w", year, err)
	}
	for _, rec := range records {
		if rec.Period.Year != year {
			return fmt.Errorf("record period %s outside year %d", rec.Period, year)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (manufacturer, year, month, count) VALUES (?, ?, ?, ?)`,
			rec.Manufacturer, rec.Period.Year, int(rec.Period.Month), rec.Count,
		); err != nil {
			return fmt.Errorf("insert record %s/%s: %w", rec.Manufacturer, rec.Period, err)
		}
	}
	return tx.Commit()
}

// InsertRecords appends records; the primary key rejects duplicates.
func (s *SQLiteStorage) InsertRecords(ctx context.Context, records []registration.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (manufacturer, year, month, count) VALUES (?, ?, ?, ?)`,
			rec.Manufacturer, rec.Period.Year, int(rec.Period.Month), rec.Count,
		); err != nil {
			return fmt.Errorf("%w: %s at %s: %v", ErrDuplicateRecord, rec.Manufacturer, rec.Period, err)
		}
	}
	return tx.Commit()
}

// Records returns all records in the inclusive range.
func (s *SQLiteStorage) Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT manufacturer, year, month, count
		FROM registrations
		WHERE (year * 100 + month) BETWEEN ? AND ?
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
func (s *SQLiteStorage) ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT manufacturer, year, month, count
		FROM registrations
		WHERE manufacturer = ? AND (year * 100 + month) BETWEEN ? AND ?
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
func (s *SQLiteStorage) Manufacturers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStorage) Bounds(ctx context.Context) (first, last registration.Period, ok bool, err error) {
	var minOrd, maxOrd sql.NullInt64
	err = s.db.QueryRowContext(ctx,
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
func (s *SQLiteStorage) Snapshot(ctx context.Context) (*registration.Dataset, error) {
	first, last, ok, err := s.Bounds(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return registration.NewDataset(nil, uuid.NewString())
	}
	records, err := s.Records(ctx, first, last)
	if err != nil {
		return nil, err
	}
	return registration.NewDataset(records, uuid.NewString())
}

// HealthCheck pings the database.
func (s *SQLiteStorage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// periodOrd maps a period onto the sortable integer year*100+month used by
// the SQL range predicates.
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
