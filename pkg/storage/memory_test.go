package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

func rec(name string, year int, month time.Month, count int64) registration.Record {
	return registration.Record{
		Manufacturer: name,
		Period:       registration.Period{Year: year, Month: month},
		Count:        count,
	}
}

func TestMemoryStorageInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	err := store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2023, time.January, 100),
		rec("ACME", 2023, time.February, 110),
		rec("BOLT", 2023, time.January, 50),
	})
	if err != nil {
		t.Fatalf("InsertRecords failed: %v", err)
	}

	records, err := store.Records(ctx,
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2023, Month: time.January})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Order: manufacturer then period.
	if records[0].Manufacturer != "ACME" || records[1].Manufacturer != "BOLT" {
		t.Errorf("unexpected order: %+v", records)
	}

	acme, err := store.ManufacturerRecords(ctx, "ACME",
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2023, Month: time.December})
	if err != nil {
		t.Fatalf("ManufacturerRecords failed: %v", err)
	}
	if len(acme) != 2 {
		t.Errorf("got %d ACME records, want 2", len(acme))
	}
}

func TestMemoryStorageDuplicateInsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	if err := store.InsertRecords(ctx, []registration.Record{rec("ACME", 2023, time.January, 100)}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.InsertRecords(ctx, []registration.Record{rec("ACME", 2023, time.January, 200)})
	if !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("expected ErrDuplicateRecord, got %v", err)
	}

	// The failed batch must not be partially applied.
	records, _ := store.Records(ctx,
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2023, Month: time.January})
	if len(records) != 1 || records[0].Count != 100 {
		t.Errorf("store mutated by failed insert: %+v", records)
	}
}

func TestMemoryStorageReplaceYear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	_ = store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2023, time.January, 100),
		rec("ACME", 2023, time.June, 999), // stale month to be replaced away
		rec("ACME", 2024, time.January, 120),
	})

	err := store.ReplaceYear(ctx, 2023, []registration.Record{
		rec("ACME", 2023, time.January, 101),
	})
	if err != nil {
		t.Fatalf("ReplaceYear failed: %v", err)
	}

	records, _ := store.Records(ctx,
		registration.Period{Year: 2023, Month: time.January},
		registration.Period{Year: 2024, Month: time.December})
	if len(records) != 2 {
		t.Fatalf("got %d records after replace, want 2", len(records))
	}
	if c, _ := findCount(records, "ACME", registration.Period{Year: 2023, Month: time.January}); c != 101 {
		t.Errorf("2023-01 count = %d, want 101", c)
	}

	// Records outside the target year are rejected.
	err = store.ReplaceYear(ctx, 2023, []registration.Record{rec("ACME", 2024, time.January, 1)})
	if err == nil {
		t.Error("expected error for record outside year")
	}
}

func TestMemoryStorageBoundsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	if _, _, ok, err := store.Bounds(ctx); err != nil || ok {
		t.Errorf("empty bounds = ok=%v err=%v, want ok=false", ok, err)
	}

	_ = store.InsertRecords(ctx, []registration.Record{
		rec("ACME", 2022, time.November, 1),
		rec("ACME", 2024, time.March, 2),
	})

	first, last, ok, err := store.Bounds(ctx)
	if err != nil || !ok {
		t.Fatalf("Bounds failed: ok=%v err=%v", ok, err)
	}
	if first != (registration.Period{Year: 2022, Month: time.November}) {
		t.Errorf("first = %v, want 2022-11", first)
	}
	if last != (registration.Period{Year: 2024, Month: time.March}) {
		t.Errorf("last = %v, want 2024-03", last)
	}

	ds, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(ds.Manufacturers()) != 1 {
		t.Errorf("snapshot manufacturers = %v", ds.Manufacturers())
	}
	if ds.Revision() == "" {
		t.Error("snapshot revision should be stamped")
	}
}

func findCount(records []registration.Record, name string, p registration.Period) (int64, bool) {
	for _, r := range records {
		if r.Manufacturer == name && r.Period == p {
			return r.Count, true
		}
	}
	return 0, false
}
