package registration

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicatePeriod is returned when a manufacturer has two records
	// for the same period.
	ErrDuplicatePeriod = errors.New("duplicate period in series")

	// ErrNegativeCount is returned for records with negative counts.
	ErrNegativeCount = errors.New("negative registration count")
)

// Record is a single manufacturer/month registration count. Records are
// immutable once ingested.
type Record struct {
	Manufacturer string `json:"manufacturer"`
	Period       Period `json:"period"`
	Count        int64  `json:"count"`
}

// TimeSeries holds one manufacturer's records in strictly increasing period
// order with no duplicates. Construct via NewTimeSeries, which enforces the
// ordering invariant.
type TimeSeries struct {
	manufacturer string
	records      []Record
	byPeriod     map[Period]int
}

// NewTimeSeries builds a series from records, sorting chronologically.
// All records must belong to the same manufacturer. Duplicate periods and
// negative counts are rejected.
func NewTimeSeries(manufacturer string, records []Record) (*TimeSeries, error) {
	if manufacturer == "" {
		return nil, errors.New("manufacturer name is required")
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})

	byPeriod := make(map[Period]int, len(sorted))
	for i, rec := range sorted {
		if rec.Manufacturer != manufacturer {
			return nil, fmt.Errorf("record manufacturer %q does not match series %q", rec.Manufacturer, manufacturer)
		}
		if rec.Count < 0 {
			return nil, fmt.Errorf("%w: %s at %s", ErrNegativeCount, manufacturer, rec.Period)
		}
		if _, dup := byPeriod[rec.Period]; dup {
			return nil, fmt.Errorf("%w: %s at %s", ErrDuplicatePeriod, manufacturer, rec.Period)
		}
		byPeriod[rec.Period] = i
	}

	return &TimeSeries{
		manufacturer: manufacturer,
		records:      sorted,
		byPeriod:     byPeriod,
	}, nil
}

// Manufacturer returns the series owner.
func (s *TimeSeries) Manufacturer() string {
	return s.manufacturer
}

// Len returns the number of records.
func (s *TimeSeries) Len() int {
	return len(s.records)
}

// Records returns the records in chronological order. The returned slice
// must not be mutated.
func (s *TimeSeries) Records() []Record {
	return s.records
}

// At returns the count for a period, with ok=false when absent.
func (s *TimeSeries) At(p Period) (int64, bool) {
	idx, ok := s.byPeriod[p]
	if !ok {
		return 0, false
	}
	return s.records[idx].Count, true
}

// QuarterTotal sums the series over a quarter. ok is false when the series
// has no record inside the quarter at all.
func (s *TimeSeries) QuarterTotal(q Quarter) (int64, bool) {
	var total int64
	found := false
	for _, p := range q.Months() {
		if c, ok := s.At(p); ok {
			total += c
			found = true
		}
	}
	return total, found
}

// Bounds returns the first and last periods of the series. ok is false for
// an empty series.
func (s *TimeSeries) Bounds() (first, last Period, ok bool) {
	if len(s.records) == 0 {
		return Period{}, Period{}, false
	}
	return s.records[0].Period, s.records[len(s.records)-1].Period, true
}

// Dataset is the full market: every manufacturer's series for the loaded
// window. It owns no mutable state after construction.
type Dataset struct {
	series   map[string]*TimeSeries
	names    []string
	revision string
}

// NewDataset groups records by manufacturer into series. Revision is an
// opaque identifier for cache keying (e.g. a UUID minted per ingest).
func NewDataset(records []Record, revision string) (*Dataset, error) {
	grouped := make(map[string][]Record)
	for _, rec := range records {
		grouped[rec.Manufacturer] = append(grouped[rec.Manufacturer], rec)
	}

	series := make(map[string]*TimeSeries, len(grouped))
	names := make([]string, 0, len(grouped))
	for name, recs := range grouped {
		ts, err := NewTimeSeries(name, recs)
		if err != nil {
			return nil, err
		}
		series[name] = ts
		names = append(names, name)
	}
	sort.Strings(names)

	return &Dataset{series: series, names: names, revision: revision}, nil
}

// Revision returns the dataset's cache-keying identifier.
func (d *Dataset) Revision() string {
	return d.revision
}

// Manufacturers returns all manufacturer names, sorted.
func (d *Dataset) Manufacturers() []string {
	return d.names
}

// Series returns one manufacturer's series, with ok=false when unknown.
func (d *Dataset) Series(manufacturer string) (*TimeSeries, bool) {
	ts, ok := d.series[manufacturer]
	return ts, ok
}

// TotalAt sums all manufacturers' counts at a period. Manufacturers with no
// record for the period contribute nothing.
func (d *Dataset) TotalAt(p Period) int64 {
	var total int64
	for _, ts := range d.series {
		if c, ok := ts.At(p); ok {
			total += c
		}
	}
	return total
}

// Bounds returns the earliest and latest periods across all series. ok is
// false for an empty dataset.
func (d *Dataset) Bounds() (first, last Period, ok bool) {
	for _, ts := range d.series {
		f, l, has := ts.Bounds()
		if !has {
			continue
		}
		if !ok {
			first, last, ok = f, l, true
			continue
		}
		if f.Before(first) {
			first = f
		}
		if l.After(last) {
			last = l
		}
	}
	return first, last, ok
}

// Records flattens the dataset back to a chronological record list, sorted
// by manufacturer then period. Used by the export layer.
func (d *Dataset) Records() []Record {
	var out []Record
	for _, name := range d.names {
		out = append(out, d.series[name].records...)
	}
	return out
}
