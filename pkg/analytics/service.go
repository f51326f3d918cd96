package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vahanmetrics/vahan/pkg/growth"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

// ErrUnknownManufacturer is returned when a requested manufacturer has no
// series in the current dataset.
var ErrUnknownManufacturer = errors.New("analytics: unknown manufacturer")

// cacheSize bounds the memoized responses. Keys carry the dataset
// revision, so stale entries age out instead of needing invalidation.
const cacheSize = 256

// Service provides dashboard analytics over the current dataset.
type Service struct {
	provider DatasetProvider
	cache    *lru.Cache[string, any]
	metrics  *observability.Metrics
}

// NewService creates an analytics service backed by provider.
func NewService(provider DatasetProvider) (*Service, error) {
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &Service{provider: provider, cache: cache}, nil
}

// SetMetrics attaches Prometheus instruments for cache and compute
// observations. A nil receiver on the instruments is tolerated, so the
// service works unchanged when metrics are disabled.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

func (s *Service) dataset(ctx context.Context) (*registration.Dataset, error) {
	ds, err := s.provider.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if ds == nil || len(ds.Manufacturers()) == 0 {
		return nil, ErrNoDataset
	}
	return ds, nil
}

// memoized returns the cached response for key or computes and stores it.
// Keys are "<revision>|<operation>[|args...]"; the operation segment labels
// the compute duration histogram.
func memoized[T any](s *Service, key string, compute func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			s.metrics.RecordCacheHit("memo")
			return typed, nil
		}
	}
	s.metrics.RecordCacheMiss("memo")
	start := time.Now()
	out, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	s.metrics.TimeCompute(operationOf(key), start)
	s.cache.Add(key, out)
	return out, nil
}

// operationOf extracts the operation segment from a cache key.
func operationOf(key string) string {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[1]
}

// OverviewResponse contains headline figures for the whole dataset.
type OverviewResponse struct {
	DatasetRevision    string              `json:"dataset_revision"`
	TotalRegistrations int64               `json:"total_registrations"`
	ManufacturerCount  int                 `json:"manufacturer_count"`
	FirstPeriod        registration.Period `json:"first_period"`
	LastPeriod         registration.Period `json:"last_period"`
	MonthsCovered      int                 `json:"months_covered"`
	AverageMonthly     float64             `json:"average_monthly"`
	LatestMarketYoY    *float64            `json:"latest_market_yoy"`
}

// Overview computes headline KPIs across all manufacturers.
func (s *Service) Overview(ctx context.Context) (*OverviewResponse, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return memoized(s, ds.Revision()+"|overview", func() (*OverviewResponse, error) {
		first, last, ok := ds.Bounds()
		if !ok {
			return nil, ErrNoDataset
		}

		market := marketSeries(ds)
		total := growth.AggregateTotal(market, first, last)
		months := len(registration.PeriodRange(first, last))

		resp := &OverviewResponse{
			DatasetRevision:    ds.Revision(),
			TotalRegistrations: total,
			ManufacturerCount:  len(ds.Manufacturers()),
			FirstPeriod:        first,
			LastPeriod:         last,
			MonthsCovered:      months,
		}
		if months > 0 {
			resp.AverageMonthly = float64(total) / float64(months)
		}
		if m, err := growth.YoY(market, last); err == nil && m.Defined {
			v := m.Value
			resp.LatestMarketYoY = &v
		}
		return resp, nil
	})
}

// YearlyPoint is one year of market-wide volume with its YoY growth.
type YearlyPoint struct {
	Year       int      `json:"year"`
	Total      int64    `json:"total"`
	YoYPercent *float64 `json:"yoy_percent"`
}

// YearlyTrend returns per-year totals across all manufacturers with
// year-over-year growth. The first year and years following a zero year
// carry a nil growth value.
func (s *Service) YearlyTrend(ctx context.Context) ([]YearlyPoint, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return memoized(s, ds.Revision()+"|yearly", func() ([]YearlyPoint, error) {
		first, last, _ := ds.Bounds()

		totals := make(map[int]int64)
		for _, p := range registration.PeriodRange(first, last) {
			totals[p.Year] += ds.TotalAt(p)
		}

		var points []YearlyPoint
		for year := first.Year; year <= last.Year; year++ {
			pt := YearlyPoint{Year: year, Total: totals[year]}
			if prev, ok := totals[year-1]; ok && prev > 0 {
				v := float64(pt.Total-prev) / float64(prev) * 100
				pt.YoYPercent = &v
			}
			points = append(points, pt)
		}
		return points, nil
	})
}

// QuarterlyPoint is one quarter of market-wide volume with its QoQ growth.
type QuarterlyPoint struct {
	Quarter    string   `json:"quarter"`
	Total      int64    `json:"total"`
	QoQPercent *float64 `json:"qoq_percent"`
}

// QuarterlyTrend returns per-quarter totals across all manufacturers with
// quarter-over-quarter growth.
func (s *Service) QuarterlyTrend(ctx context.Context) ([]QuarterlyPoint, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return memoized(s, ds.Revision()+"|quarterly", func() ([]QuarterlyPoint, error) {
		market := marketSeries(ds)

		var points []QuarterlyPoint
		for _, q := range quartersOf(market) {
			total, _ := market.QuarterTotal(q)
			pt := QuarterlyPoint{Quarter: q.String(), Total: total}
			if m, err := growth.QoQ(market, q); err == nil && m.Defined {
				v := m.Value
				pt.QoQPercent = &v
			}
			points = append(points, pt)
		}
		return points, nil
	})
}

// ManufacturerRank is a manufacturer's total volume and market share over
// the dataset window.
type ManufacturerRank struct {
	Manufacturer string  `json:"manufacturer"`
	Total        int64   `json:"total"`
	SharePercent float64 `json:"share_percent"`
}

// TopManufacturers returns the limit largest manufacturers by total volume.
func (s *Service) TopManufacturers(ctx context.Context, limit int) ([]ManufacturerRank, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	key := ds.Revision() + "|top|" + strconv.Itoa(limit)
	return memoized(s, key, func() ([]ManufacturerRank, error) {
		ranks := volumeRanks(ds)
		if limit < len(ranks) {
			ranks = ranks[:limit]
		}
		return ranks, nil
	})
}

// TrendingManufacturers returns the limit manufacturers with the highest
// average YoY growth. Manufacturers with no defined YoY metric are excluded.
func (s *Service) TrendingManufacturers(ctx context.Context, limit int) ([]growth.Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	key := ds.Revision() + "|trending|" + strconv.Itoa(limit)
	return memoized(s, key, func() ([]growth.Summary, error) {
		var summaries []growth.Summary
		for _, name := range ds.Manufacturers() {
			series, _ := ds.Series(name)
			sum := growth.Summarize(series)
			if sum.AverageYoY == nil {
				continue
			}
			summaries = append(summaries, sum)
		}
		sort.Slice(summaries, func(i, j int) bool {
			return *summaries[i].AverageYoY > *summaries[j].AverageYoY
		})
		if limit < len(summaries) {
			summaries = summaries[:limit]
		}
		return summaries, nil
	})
}

// ManufacturerStatsResponse bundles one manufacturer's series with its
// growth sweeps and headline summary.
type ManufacturerStatsResponse struct {
	Manufacturer string                `json:"manufacturer"`
	Records      []registration.Record `json:"records"`
	Summary      growth.Summary        `json:"summary"`
	SharePercent float64               `json:"share_percent"`
	YoY          []growth.Metric       `json:"yoy"`
	QoQ          []growth.Metric       `json:"qoq"`
}

// ManufacturerStats returns a manufacturer's full analytics view. When from
// or to are non-zero the returned records are clipped to that window; the
// growth sweeps always cover the full series so baselines stay available.
func (s *Service) ManufacturerStats(ctx context.Context, name string, from, to registration.Period) (*ManufacturerStatsResponse, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	series, ok := ds.Series(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownManufacturer, name)
	}

	records := series.Records()
	if !from.IsZero() || !to.IsZero() {
		var clipped []registration.Record
		for _, rec := range records {
			if !from.IsZero() && rec.Period.Before(from) {
				continue
			}
			if !to.IsZero() && rec.Period.After(to) {
				continue
			}
			clipped = append(clipped, rec)
		}
		records = clipped
	}

	resp := &ManufacturerStatsResponse{
		Manufacturer: series.Manufacturer(),
		Records:      records,
		Summary:      growth.Summarize(series),
		YoY:          growth.SeriesYoY(series),
		QoQ:          growth.SeriesQoQ(series),
	}
	if _, last, ok := series.Bounds(); ok {
		if share, err := growth.MarketShare(ds, name, last); err == nil {
			resp.SharePercent = share
		}
	}
	return resp, nil
}

// ManufacturerYoY computes a single YoY metric. period accepts "YYYY-MM"
// for a month, "YYYYQN" for a quarter, or empty for the series' latest month.
func (s *Service) ManufacturerYoY(ctx context.Context, name, period string) (growth.Metric, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return growth.Metric{}, err
	}
	series, ok := ds.Series(name)
	if !ok {
		return growth.Metric{}, fmt.Errorf("%w: %s", ErrUnknownManufacturer, name)
	}

	if period == "" {
		_, last, ok := series.Bounds()
		if !ok {
			return growth.Metric{}, growth.ErrInsufficientHistory
		}
		return growth.YoY(series, last)
	}
	if q, err := registration.ParseQuarter(period); err == nil {
		return growth.YoYQuarter(series, q)
	}
	p, err := registration.ParsePeriod(period)
	if err != nil {
		return growth.Metric{}, fmt.Errorf("parse period %q: %w", period, err)
	}
	return growth.YoY(series, p)
}

// ManufacturerQoQ computes a single QoQ metric. period accepts "YYYYQN" or
// empty for the series' latest quarter.
func (s *Service) ManufacturerQoQ(ctx context.Context, name, period string) (growth.Metric, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return growth.Metric{}, err
	}
	series, ok := ds.Series(name)
	if !ok {
		return growth.Metric{}, fmt.Errorf("%w: %s", ErrUnknownManufacturer, name)
	}

	var q registration.Quarter
	if period == "" {
		_, last, ok := series.Bounds()
		if !ok {
			return growth.Metric{}, growth.ErrInsufficientHistory
		}
		q = last.Quarter()
	} else {
		parsed, err := registration.ParseQuarter(period)
		if err != nil {
			return growth.Metric{}, fmt.Errorf("parse quarter %q: %w", period, err)
		}
		q = parsed
	}
	return growth.QoQ(series, q)
}

// ShareEntry is one manufacturer's slice of a period's market.
type ShareEntry struct {
	Manufacturer string  `json:"manufacturer"`
	SharePercent float64 `json:"share_percent"`
}

// MarketShareResponse is the full market breakdown at one period.
type MarketShareResponse struct {
	Period registration.Period `json:"period"`
	Total  int64               `json:"total"`
	Shares []ShareEntry        `json:"shares"`
}

// MarketShare returns every manufacturer's share at the given period
// ("YYYY-MM", or empty for the dataset's latest period), sorted by share
// descending then name.
func (s *Service) MarketShare(ctx context.Context, period string) (*MarketShareResponse, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}

	var p registration.Period
	if period == "" {
		_, last, ok := ds.Bounds()
		if !ok {
			return nil, ErrNoDataset
		}
		p = last
	} else {
		parsed, err := registration.ParsePeriod(period)
		if err != nil {
			return nil, fmt.Errorf("parse period %q: %w", period, err)
		}
		p = parsed
	}

	shares, err := growth.MarketShareAll(ds, p)
	if err != nil {
		return nil, err
	}

	resp := &MarketShareResponse{Period: p, Total: ds.TotalAt(p)}
	for name, share := range shares {
		resp.Shares = append(resp.Shares, ShareEntry{Manufacturer: name, SharePercent: share})
	}
	sort.Slice(resp.Shares, func(i, j int) bool {
		if resp.Shares[i].SharePercent != resp.Shares[j].SharePercent {
			return resp.Shares[i].SharePercent > resp.Shares[j].SharePercent
		}
		return resp.Shares[i].Manufacturer < resp.Shares[j].Manufacturer
	})
	return resp, nil
}

// SeasonalPoint is the average market-wide volume for one calendar month.
type SeasonalPoint struct {
	Month   string  `json:"month"`
	Average float64 `json:"average"`
}

// SeasonalPattern returns the average monthly volume per calendar month
// across all years in the dataset.
func (s *Service) SeasonalPattern(ctx context.Context) ([]SeasonalPoint, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return memoized(s, ds.Revision()+"|seasonal", func() ([]SeasonalPoint, error) {
		averages := growth.SeasonalAverages(ds)
		points := make([]SeasonalPoint, 0, 12)
		for i, avg := range averages {
			points = append(points, SeasonalPoint{Month: time.Month(i + 1).String(), Average: avg})
		}
		return points, nil
	})
}

// marketSeries folds every manufacturer into a single market-wide series.
func marketSeries(ds *registration.Dataset) *registration.TimeSeries {
	first, last, ok := ds.Bounds()
	if !ok {
		series, _ := registration.NewTimeSeries("ALL", nil)
		return series
	}
	var records []registration.Record
	for _, p := range registration.PeriodRange(first, last) {
		records = append(records, registration.Record{
			Manufacturer: "ALL",
			Period:       p,
			Count:        ds.TotalAt(p),
		})
	}
	// Cannot fail: one record per period, counts are sums of non-negatives.
	series, _ := registration.NewTimeSeries("ALL", records)
	return series
}

// quartersOf lists the distinct quarters a series touches, in order.
func quartersOf(s *registration.TimeSeries) []registration.Quarter {
	seen := make(map[registration.Quarter]bool)
	var out []registration.Quarter
	for _, rec := range s.Records() {
		q := rec.Period.Quarter()
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// volumeRanks orders manufacturers by total volume with window-wide shares.
func volumeRanks(ds *registration.Dataset) []ManufacturerRank {
	var ranks []ManufacturerRank
	var market int64
	for _, name := range ds.Manufacturers() {
		series, _ := ds.Series(name)
		first, last, ok := series.Bounds()
		if !ok {
			continue
		}
		total := growth.AggregateTotal(series, first, last)
		ranks = append(ranks, ManufacturerRank{Manufacturer: name, Total: total})
		market += total
	}
	if market > 0 {
		for i := range ranks {
			ranks[i].SharePercent = float64(ranks[i].Total) / float64(market) * 100
		}
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Total != ranks[j].Total {
			return ranks[i].Total > ranks[j].Total
		}
		return ranks[i].Manufacturer < ranks[j].Manufacturer
	})
	return ranks
}
