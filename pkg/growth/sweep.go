package growth

import (
	"math"
	"sort"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// SeriesYoY computes YoY metrics for every month in the series that has a
// prior-year baseline. Months without a baseline are skipped rather than
// reported as errors.
func SeriesYoY(s *registration.TimeSeries) []Metric {
	var out []Metric
	for _, rec := range s.Records() {
		m, err := YoY(s, rec.Period)
		if err != nil {
			// only ErrInsufficientHistory can occur here
			continue
		}
		out = append(out, m)
	}
	return out
}

// SeriesQoQ computes QoQ metrics for every quarter the series covers that
// has a preceding-quarter baseline.
func SeriesQoQ(s *registration.TimeSeries) []Metric {
	quarters := seriesQuarters(s)
	var out []Metric
	for _, q := range quarters {
		m, err := QoQ(s, q)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// seriesQuarters lists the distinct quarters a series touches, in order.
func seriesQuarters(s *registration.TimeSeries) []registration.Quarter {
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

// Summary condenses a series into headline growth figures.
type Summary struct {
	Manufacturer string   `json:"manufacturer"`
	AverageYoY   *float64 `json:"average_yoy"`  // mean of defined YoY metrics; nil when none
	LatestYoY    *float64 `json:"latest_yoy"`   // most recent defined YoY; nil when none
	TotalGrowth  *float64 `json:"total_growth"` // first period vs last; nil when first count is zero
	TotalCount   int64    `json:"total_count"`
}

// Summarize computes a Summary over the whole series window.
func Summarize(s *registration.TimeSeries) Summary {
	sum := Summary{Manufacturer: s.Manufacturer()}

	first, last, ok := s.Bounds()
	if !ok {
		return sum
	}
	sum.TotalCount = AggregateTotal(s, first, last)

	metrics := SeriesYoY(s)
	var total float64
	var n int
	for _, m := range metrics {
		if !m.Defined {
			continue
		}
		total += m.Value
		n++
		v := m.Value
		sum.LatestYoY = &v
	}
	if n > 0 {
		avg := total / float64(n)
		sum.AverageYoY = &avg
	}

	firstCount, _ := s.At(first)
	lastCount, _ := s.At(last)
	if v, defined := percentChange(lastCount, firstCount); defined {
		sum.TotalGrowth = &v
	}
	return sum
}

// SeasonalAverages returns the mean market-wide monthly total per calendar
// month across every year the dataset covers. Index 0 is January. Months
// with no data average to NaN-free zero via the count guard.
func SeasonalAverages(d *registration.Dataset) [12]float64 {
	var sums [12]float64
	var counts [12]int

	first, last, ok := d.Bounds()
	if !ok {
		return sums
	}
	for _, p := range registration.PeriodRange(first, last) {
		total := d.TotalAt(p)
		if total == 0 {
			continue
		}
		idx := int(p.Month) - 1
		sums[idx] += float64(total)
		counts[idx]++
	}

	var out [12]float64
	for i := range sums {
		if counts[i] > 0 {
			out[i] = sums[i] / float64(counts[i])
		}
	}
	return out
}

// TopShareConcentration returns the combined market share of the n largest
// manufacturers by total volume over the dataset window.
func TopShareConcentration(d *registration.Dataset, n int) float64 {
	type volume struct {
		name  string
		total int64
	}

	var vols []volume
	var market int64
	for _, name := range d.Manufacturers() {
		s, _ := d.Series(name)
		first, last, ok := s.Bounds()
		if !ok {
			continue
		}
		t := AggregateTotal(s, first, last)
		vols = append(vols, volume{name, t})
		market += t
	}
	if market == 0 || n <= 0 {
		return 0
	}

	sort.Slice(vols, func(i, j int) bool { return vols[i].total > vols[j].total })
	if n > len(vols) {
		n = len(vols)
	}

	var top int64
	for _, v := range vols[:n] {
		top += v.total
	}
	share := float64(top) / float64(market) * 100
	// Clamp float drift so callers comparing against 100 stay sane.
	return math.Min(share, 100)
}
