package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "vahan.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteInsertAndQuery(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	records := []registration.Record{
		rec("BOLT", 2024, time.February, 74),
		rec("ACME", 2023, time.January, 100),
		rec("ACME", 2024, time.January, 126),
	}
	if err := store.InsertRecords(ctx, records); err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}

	got, err := store.Records(ctx,
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2024, Month: time.December})
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Ordered by manufacturer, then period.
	if got[0].Manufacturer != "ACME" || got[0].Period.Year != 2023 {
		t.Errorf("first record = %+v", got[0])
	}
	if got[2].Manufacturer != "BOLT" {
		t.Errorf("last record = %+v", got[2])
	}
}

func TestSQLiteDuplicateInsert(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.InsertRecords(ctx, []registration.Record{rec("ACME", 2024, time.March, 5)}); err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}
	err := store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2024, time.April, 6),
		rec("ACME", 2024, time.March, 7),
	})
	if err == nil {
		t.Fatal("expected duplicate error")
	}

	// The failed batch must not be partially applied.
	got, err := store.ManufacturerRecords(ctx, "ACME",
		registration.Period{Year: 2024, Month: time.January},
		registration.Period{Year: 2024, Month: time.December})
	if err != nil {
		t.Fatalf("ManufacturerRecords: %v", err)
	}
	if len(got) != 1 || got[0].Count != 5 {
		t.Fatalf("records after failed insert = %+v", got)
	}
}

func TestSQLiteReplaceYear(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2023, time.January, 1),
		rec("ACME", 2023, time.June, 2),
		rec("ACME", 2024, time.January, 3),
	}); err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}

	if err := store.ReplaceYear(ctx, 2023, []registration.Record{
		rec("ACME", 2023, time.January, 10),
	}); err != nil {
		t.Fatalf("ReplaceYear: %v", err)
	}

	got, err := store.Records(ctx,
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2024, Month: time.December})
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Count != 10 || got[1].Count != 3 {
		t.Errorf("records = %+v", got)
	}

	if err := store.ReplaceYear(ctx, 2023, []registration.Record{rec("ACME", 2024, time.May, 1)}); err == nil {
		t.Error("expected error for record outside replaced year")
	}
}

func TestSQLiteBoundsAndSnapshot(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, _, ok, err := store.Bounds(ctx)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if ok {
		t.Error("Bounds ok = true on empty store")
	}

	if err := store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2022, time.November, 1),
		rec("BOLT", 2024, time.March, 2),
	}); err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}

	first, last, ok, err := store.Bounds(ctx)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if !ok {
		t.Fatal("Bounds ok = false")
	}
	if first.Year != 2022 || first.Month != time.November {
		t.Errorf("first = %v", first)
	}
	if last.Year != 2024 || last.Month != time.March {
		t.Errorf("last = %v", last)
	}

	ds, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(ds.Manufacturers()) != 2 {
		t.Errorf("manufacturers = %v", ds.Manufacturers())
	}
	if ds.Revision() == "" {
		t.Error("empty revision")
	}
}

func TestSQLiteHealthCheck(t *testing.T) {
	store := newTestSQLite(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
