package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vahanmetrics/vahan/pkg/growth"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

func rec(name string, year int, month time.Month, count int64) registration.Record {
	return registration.Record{
		Manufacturer: name,
		Period:       registration.Period{Year: year, Month: month},
		Count:        count,
	}
}

// testDataset covers two manufacturers over Jan-Feb of 2023 and 2024.
func testDataset(t *testing.T, revision string) *registration.Dataset {
	t.Helper()
	ds, err := registration.NewDataset([]registration.Record{
		rec("ACME", 2023, time.January, 100),
		rec("ACME", 2023, time.February, 110),
		rec("ACME", 2024, time.January, 126),
		rec("ACME", 2024, time.February, 121),
		rec("BOLT", 2023, time.January, 50),
		rec("BOLT", 2023, time.February, 40),
		rec("BOLT", 2024, time.January, 60),
		rec("BOLT", 2024, time.February, 66),
	}, revision)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewSnapshotHolder(testDataset(t, "rev-1")))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOverview(t *testing.T) {
	svc := newTestService(t)

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if overview.TotalRegistrations != 673 {
		t.Errorf("TotalRegistrations = %d, want 673", overview.TotalRegistrations)
	}
	if overview.ManufacturerCount != 2 {
		t.Errorf("ManufacturerCount = %d, want 2", overview.ManufacturerCount)
	}
	if overview.FirstPeriod.String() != "2023-01" || overview.LastPeriod.String() != "2024-02" {
		t.Errorf("span = %s..%s", overview.FirstPeriod, overview.LastPeriod)
	}
	if overview.MonthsCovered != 14 {
		t.Errorf("MonthsCovered = %d, want 14", overview.MonthsCovered)
	}
	approx(t, overview.AverageMonthly, 673.0/14)
	if overview.LatestMarketYoY == nil {
		t.Fatal("LatestMarketYoY = nil")
	}
	// Feb 2024 market 187 vs Feb 2023 market 150.
	approx(t, *overview.LatestMarketYoY, (187.0-150.0)/150.0*100)
}

func TestOverviewNoDataset(t *testing.T) {
	svc, err := NewService(NewSnapshotHolder(nil))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Overview(context.Background()); !errors.Is(err, ErrNoDataset) {
		t.Errorf("err = %v, want ErrNoDataset", err)
	}
}

func TestYearlyTrend(t *testing.T) {
	svc := newTestService(t)

	points, err := svc.YearlyTrend(context.Background())
	if err != nil {
		t.Fatalf("YearlyTrend: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len = %d, want 2", len(points))
	}

	if points[0].Year != 2023 || points[0].Total != 300 {
		t.Errorf("2023 point = %+v", points[0])
	}
	if points[0].YoYPercent != nil {
		t.Error("first year must have nil growth")
	}

	if points[1].Year != 2024 || points[1].Total != 373 {
		t.Errorf("2024 point = %+v", points[1])
	}
	if points[1].YoYPercent == nil {
		t.Fatal("2024 YoYPercent = nil")
	}
	approx(t, *points[1].YoYPercent, 73.0/300.0*100)
}

func TestQuarterlyTrend(t *testing.T) {
	svc := newTestService(t)

	points, err := svc.QuarterlyTrend(context.Background())
	if err != nil {
		t.Fatalf("QuarterlyTrend: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len = %d, want 2", len(points))
	}
	if points[0].Quarter != "2023Q1" || points[0].Total != 300 {
		t.Errorf("first = %+v", points[0])
	}
	// 2024Q1's prior quarter (2023Q4) has no data, so growth is undefined.
	if points[1].Quarter != "2024Q1" || points[1].QoQPercent != nil {
		t.Errorf("second = %+v", points[1])
	}
}

func TestTopManufacturers(t *testing.T) {
	svc := newTestService(t)

	ranks, err := svc.TopManufacturers(context.Background(), 10)
	if err != nil {
		t.Fatalf("TopManufacturers: %v", err)
	}
	if len(ranks) != 2 {
		t.Fatalf("len = %d, want 2", len(ranks))
	}
	if ranks[0].Manufacturer != "ACME" || ranks[0].Total != 457 {
		t.Errorf("leader = %+v", ranks[0])
	}
	approx(t, ranks[0].SharePercent+ranks[1].SharePercent, 100)

	one, err := svc.TopManufacturers(context.Background(), 1)
	if err != nil {
		t.Fatalf("TopManufacturers limit 1: %v", err)
	}
	if len(one) != 1 {
		t.Errorf("len = %d, want 1", len(one))
	}
}

func TestTrendingManufacturers(t *testing.T) {
	svc := newTestService(t)

	trending, err := svc.TrendingManufacturers(context.Background(), 10)
	if err != nil {
		t.Fatalf("TrendingManufacturers: %v", err)
	}
	if len(trending) != 2 {
		t.Fatalf("len = %d, want 2", len(trending))
	}
	// BOLT averages (20 + 65) / 2 = 42.5, ahead of ACME's (26 + 10) / 2 = 18.
	if trending[0].Manufacturer != "BOLT" {
		t.Errorf("leader = %s", trending[0].Manufacturer)
	}
	approx(t, *trending[0].AverageYoY, 42.5)
	approx(t, *trending[1].AverageYoY, 18)
}

func TestManufacturerStats(t *testing.T) {
	svc := newTestService(t)

	stats, err := svc.ManufacturerStats(context.Background(), "ACME", registration.Period{}, registration.Period{})
	if err != nil {
		t.Fatalf("ManufacturerStats: %v", err)
	}
	if len(stats.Records) != 4 {
		t.Errorf("records = %d, want 4", len(stats.Records))
	}
	if stats.Summary.TotalCount != 457 {
		t.Errorf("TotalCount = %d", stats.Summary.TotalCount)
	}
	// Share at ACME's latest period, Feb 2024: 121 of 187.
	approx(t, stats.SharePercent, 121.0/187.0*100)
	if len(stats.YoY) != 2 {
		t.Errorf("yoy metrics = %d, want 2", len(stats.YoY))
	}

	from := registration.Period{Year: 2024, Month: time.January}
	clipped, err := svc.ManufacturerStats(context.Background(), "ACME", from, registration.Period{})
	if err != nil {
		t.Fatalf("ManufacturerStats clipped: %v", err)
	}
	if len(clipped.Records) != 2 {
		t.Errorf("clipped records = %d, want 2", len(clipped.Records))
	}

	if _, err := svc.ManufacturerStats(context.Background(), "NOPE", registration.Period{}, registration.Period{}); !errors.Is(err, ErrUnknownManufacturer) {
		t.Errorf("err = %v, want ErrUnknownManufacturer", err)
	}
}

func TestManufacturerYoY(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.ManufacturerYoY(ctx, "ACME", "2024-01")
	if err != nil {
		t.Fatalf("month YoY: %v", err)
	}
	approx(t, m.Value, 26)

	m, err = svc.ManufacturerYoY(ctx, "ACME", "2024Q1")
	if err != nil {
		t.Fatalf("quarter YoY: %v", err)
	}
	approx(t, m.Value, (247.0-210.0)/210.0*100)

	m, err = svc.ManufacturerYoY(ctx, "ACME", "")
	if err != nil {
		t.Fatalf("latest YoY: %v", err)
	}
	if m.Period != "2024-02" {
		t.Errorf("latest period = %s", m.Period)
	}

	if _, err := svc.ManufacturerYoY(ctx, "ACME", "banana"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := svc.ManufacturerYoY(ctx, "ACME", "2023-01"); !errors.Is(err, growth.ErrInsufficientHistory) {
		t.Errorf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestManufacturerQoQ(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// 2024Q1's prior quarter has no records.
	if _, err := svc.ManufacturerQoQ(ctx, "ACME", "2024Q1"); !errors.Is(err, growth.ErrInsufficientHistory) {
		t.Errorf("err = %v, want ErrInsufficientHistory", err)
	}
	if _, err := svc.ManufacturerQoQ(ctx, "ACME", "1stquarter"); err == nil {
		t.Error("expected parse error")
	}
}

func TestMarketShare(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.MarketShare(context.Background(), "2024-02")
	if err != nil {
		t.Fatalf("MarketShare: %v", err)
	}
	if resp.Total != 187 {
		t.Errorf("Total = %d, want 187", resp.Total)
	}
	if len(resp.Shares) != 2 {
		t.Fatalf("shares = %d, want 2", len(resp.Shares))
	}
	if resp.Shares[0].Manufacturer != "ACME" {
		t.Errorf("largest share = %s", resp.Shares[0].Manufacturer)
	}

	var sum float64
	for _, entry := range resp.Shares {
		sum += entry.SharePercent
	}
	if math.Abs(sum-100) > 1e-6 {
		t.Errorf("shares sum to %v, want 100", sum)
	}

	// Empty period falls back to the dataset's latest.
	latest, err := svc.MarketShare(context.Background(), "")
	if err != nil {
		t.Fatalf("MarketShare latest: %v", err)
	}
	if latest.Period.String() != "2024-02" {
		t.Errorf("latest period = %s", latest.Period)
	}
}

func TestSeasonalPattern(t *testing.T) {
	svc := newTestService(t)

	points, err := svc.SeasonalPattern(context.Background())
	if err != nil {
		t.Fatalf("SeasonalPattern: %v", err)
	}
	if len(points) != 12 {
		t.Fatalf("len = %d, want 12", len(points))
	}
	if points[0].Month != "January" {
		t.Errorf("first month = %s", points[0].Month)
	}
	// January averages (150 + 186) / 2; March onward has no data.
	approx(t, points[0].Average, 168)
	approx(t, points[2].Average, 0)
}

func TestCacheInvalidatesOnNewRevision(t *testing.T) {
	holder := NewSnapshotHolder(testDataset(t, "rev-1"))
	svc, err := NewService(holder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	before, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	ds, err := registration.NewDataset([]registration.Record{
		rec("ACME", 2024, time.March, 999),
	}, "rev-2")
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	holder.Store(ds)

	after, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview after swap: %v", err)
	}
	if after.DatasetRevision == before.DatasetRevision {
		t.Error("revision did not change")
	}
	if after.TotalRegistrations != 999 {
		t.Errorf("TotalRegistrations = %d, want 999", after.TotalRegistrations)
	}
}

func TestMemoizationRecordsCacheMetrics(t *testing.T) {
	svc := newTestService(t)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	svc.SetMetrics(metrics)

	ctx := context.Background()
	if _, err := svc.Overview(ctx); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if _, err := svc.Overview(ctx); err != nil {
		t.Fatalf("Overview (cached): %v", err)
	}

	if got := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("memo")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("memo")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	// One computation, labelled by the key's operation segment.
	if count := testutil.CollectAndCount(metrics.ComputeDuration); count != 1 {
		t.Errorf("compute series = %d, want 1", count)
	}
	if count, err := testutil.GatherAndCount(registry, "vahan_compute_duration_seconds"); err != nil || count != 1 {
		t.Errorf("gathered compute series = %d (err %v), want 1", count, err)
	}
}

func TestOperationOf(t *testing.T) {
	cases := []struct{ key, want string }{
		{"rev-1|overview", "overview"},
		{"rev-1|yoy|ACME|2024", "yoy"},
		{"plainkey", "plainkey"},
	}
	for _, c := range cases {
		if got := operationOf(c.key); got != c.want {
			t.Errorf("operationOf(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}
