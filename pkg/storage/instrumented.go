package storage

import (
	"context"
	"time"

	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

// InstrumentedStorage decorates a Storage with per-operation counters and
// latency histograms, labelled by the backend name.
type InstrumentedStorage struct {
	next    Storage
	backend string
	metrics *observability.Metrics
}

// NewInstrumentedStorage wraps next so every call is recorded under the
// given backend label.
func NewInstrumentedStorage(next Storage, backend string, metrics *observability.Metrics) *InstrumentedStorage {
	return &InstrumentedStorage{next: next, backend: backend, metrics: metrics}
}

func (s *InstrumentedStorage) ReplaceYear(ctx context.Context, year int, records []registration.Record) error {
	start := time.Now()
	err := s.next.ReplaceYear(ctx, year, records)
	s.metrics.RecordStorageOp("replace_year", s.backend, start, err)
	return err
}

func (s *InstrumentedStorage) InsertRecords(ctx context.Context, records []registration.Record) error {
	start := time.Now()
	err := s.next.InsertRecords(ctx, records)
	s.metrics.RecordStorageOp("insert_records", s.backend, start, err)
	return err
}

func (s *InstrumentedStorage) Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error) {
	start := time.Now()
	records, err := s.next.Records(ctx, from, to)
	s.metrics.RecordStorageOp("records", s.backend, start, err)
	return records, err
}

func (s *InstrumentedStorage) ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error) {
	start := time.Now()
	records, err := s.next.ManufacturerRecords(ctx, manufacturer, from, to)
	s.metrics.RecordStorageOp("manufacturer_records", s.backend, start, err)
	return records, err
}

func (s *InstrumentedStorage) Manufacturers(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.next.Manufacturers(ctx)
	s.metrics.RecordStorageOp("manufacturers", s.backend, start, err)
	return names, err
}

func (s *InstrumentedStorage) Bounds(ctx context.Context) (registration.Period, registration.Period, bool, error) {
	start := time.Now()
	first, last, ok, err := s.next.Bounds(ctx)
	s.metrics.RecordStorageOp("bounds", s.backend, start, err)
	return first, last, ok, err
}

func (s *InstrumentedStorage) Snapshot(ctx context.Context) (*registration.Dataset, error) {
	start := time.Now()
	ds, err := s.next.Snapshot(ctx)
	s.metrics.RecordStorageOp("snapshot", s.backend, start, err)
	return ds, err
}

// HealthCheck passes through unrecorded; the health endpoint already
// reports probe outcomes.
func (s *InstrumentedStorage) HealthCheck(ctx context.Context) error {
	return s.next.HealthCheck(ctx)
}

func (s *InstrumentedStorage) Close() error {
	return s.next.Close()
}
