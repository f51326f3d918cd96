package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// MemoryStorage is an in-memory Storage for development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[recordKey]registration.Record
}

type recordKey struct {
	manufacturer string
	period       registration.Period
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[recordKey]registration.Record)}
}

// ReplaceYear swaps all records for a year.
func (m *MemoryStorage) ReplaceYear(ctx context.Context, year int, records []registration.Record) error {
	for _, rec := range records {
		if rec.Period.Year != year {
			return fmt.Errorf("record period %s outside year %d", rec.Period, year)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.records {
		if key.period.Year == year {
			delete(m.records, key)
		}
	}
	for _, rec := range records {
		m.records[recordKey{rec.Manufacturer, rec.Period}] = rec
	}
	return nil
}

// InsertRecords appends records, rejecting duplicates.
func (m *MemoryStorage) InsertRecords(ctx context.Context, records []registration.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		key := recordKey{rec.Manufacturer, rec.Period}
		if _, exists := m.records[key]; exists {
			return fmt.Errorf("%w: %s at %s", ErrDuplicateRecord, rec.Manufacturer, rec.Period)
		}
	}
	for _, rec := range records {
		m.records[recordKey{rec.Manufacturer, rec.Period}] = rec
	}
	return nil
}

// Records returns all records in the inclusive range.
func (m *MemoryStorage) Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []registration.Record
	for key, rec := range m.records {
		if inRange(key.period, from, to) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// ManufacturerRecords returns one manufacturer's records in the range.
func (m *MemoryStorage) ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []registration.Record
	for key, rec := range m.records {
		if key.manufacturer == manufacturer && inRange(key.period, from, to) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// Manufacturers lists all names, sorted.
func (m *MemoryStorage) Manufacturers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for key := range m.records {
		if !seen[key.manufacturer] {
			seen[key.manufacturer] = true
			names = append(names, key.manufacturer)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Bounds returns the stored period range.
func (m *MemoryStorage) Bounds(ctx context.Context) (first, last registration.Period, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for key := range m.records {
		if !ok {
			first, last, ok = key.period, key.period, true
			continue
		}
		if key.period.Before(first) {
			first = key.period
		}
		if key.period.After(last) {
			last = key.period
		}
	}
	return first, last, ok, nil
}

// Snapshot materializes the store as a Dataset.
func (m *MemoryStorage) Snapshot(ctx context.Context) (*registration.Dataset, error) {
	m.mu.RLock()
	records := make([]registration.Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	return registration.NewDataset(records, uuid.NewString())
}

// HealthCheck always succeeds for the in-memory store.
func (m *MemoryStorage) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

func inRange(p, from, to registration.Period) bool {
	return !p.Before(from) && !p.After(to)
}

func sortRecords(records []registration.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Manufacturer != records[j].Manufacturer {
			return records[i].Manufacturer < records[j].Manufacturer
		}
		return records[i].Period.Before(records[j].Period)
	})
}
