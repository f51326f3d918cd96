// Package growth computes period-over-period growth and market-share metrics
// from registration time series. All functions are pure: they read their
// inputs and allocate fresh outputs, so concurrent use needs no locking.
package growth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

var (
	// ErrInsufficientHistory is returned when the baseline period needed
	// for a growth computation has no record.
	ErrInsufficientHistory = errors.New("insufficient history for growth computation")

	// ErrEmptyMarket is returned when the market-wide total for a period
	// is zero, making a share undefined.
	ErrEmptyMarket = errors.New("empty market: zero total registrations for period")
)

// Kind discriminates growth metric flavors.
type Kind string

const (
	KindYoY Kind = "yoy"
	KindQoQ Kind = "qoq"
)

// Metric is a computed growth value. Defined=false means the baseline count
// was zero: the percentage is undefined, which is not the same as 0%.
type Metric struct {
	Manufacturer string
	Period       string // "YYYY-MM" for monthly, "YYYYQN" for quarterly
	Kind         Kind
	Value        float64 // percent; negative means decline
	Defined      bool
}

// MarshalJSON renders undefined metrics with a null value so consumers can
// tell "no growth" from "no baseline".
func (m Metric) MarshalJSON() ([]byte, error) {
	var value *float64
	if m.Defined {
		v := m.Value
		value = &v
	}
	return json.Marshal(struct {
		Manufacturer string   `json:"manufacturer"`
		Period       string   `json:"period"`
		Kind         Kind     `json:"kind"`
		Value        *float64 `json:"value"`
		Defined      bool     `json:"defined"`
	}{m.Manufacturer, m.Period, m.Kind, value, m.Defined})
}

// percentChange applies the growth formula with the zero-baseline rule.
func percentChange(current, baseline int64) (float64, bool) {
	if baseline == 0 {
		return 0, false
	}
	return float64(current-baseline) / float64(baseline) * 100, true
}

// YoY computes year-over-year growth for a month: the percentage change from
// the same month one year earlier. A missing current or prior-year record
// yields ErrInsufficientHistory; a zero prior-year count yields an undefined
// metric rather than dividing by zero.
func YoY(s *registration.TimeSeries, p registration.Period) (Metric, error) {
	current, ok := s.At(p)
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no record at %s", ErrInsufficientHistory, s.Manufacturer(), p)
	}
	prior, ok := s.At(p.YearEarlier())
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no record at %s", ErrInsufficientHistory, s.Manufacturer(), p.YearEarlier())
	}

	value, defined := percentChange(current, prior)
	return Metric{
		Manufacturer: s.Manufacturer(),
		Period:       p.String(),
		Kind:         KindYoY,
		Value:        value,
		Defined:      defined,
	}, nil
}

// YoYQuarter computes year-over-year growth for a quarter, summing the
// quarter's months on both sides of the comparison.
func YoYQuarter(s *registration.TimeSeries, q registration.Quarter) (Metric, error) {
	current, ok := s.QuarterTotal(q)
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no records in %s", ErrInsufficientHistory, s.Manufacturer(), q)
	}
	prior, ok := s.QuarterTotal(q.YearEarlier())
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no records in %s", ErrInsufficientHistory, s.Manufacturer(), q.YearEarlier())
	}

	value, defined := percentChange(current, prior)
	return Metric{
		Manufacturer: s.Manufacturer(),
		Period:       q.String(),
		Kind:         KindYoY,
		Value:        value,
		Defined:      defined,
	}, nil
}

// QoQ computes quarter-over-quarter growth: the percentage change from the
// immediately preceding quarter. Zero/missing-history policy matches YoY.
func QoQ(s *registration.TimeSeries, q registration.Quarter) (Metric, error) {
	current, ok := s.QuarterTotal(q)
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no records in %s", ErrInsufficientHistory, s.Manufacturer(), q)
	}
	prior, ok := s.QuarterTotal(q.Prev())
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s has no records in %s", ErrInsufficientHistory, s.Manufacturer(), q.Prev())
	}

	value, defined := percentChange(current, prior)
	return Metric{
		Manufacturer: s.Manufacturer(),
		Period:       q.String(),
		Kind:         KindQoQ,
		Value:        value,
		Defined:      defined,
	}, nil
}

// MarketShare returns one manufacturer's registrations at a period as a
// percentage of the whole market. A manufacturer with no record at the
// period holds 0% of a non-empty market; a zero market-wide total yields
// ErrEmptyMarket.
func MarketShare(d *registration.Dataset, manufacturer string, p registration.Period) (float64, error) {
	total := d.TotalAt(p)
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyMarket, p)
	}

	var count int64
	if s, ok := d.Series(manufacturer); ok {
		if c, ok := s.At(p); ok {
			count = c
		}
	}
	return float64(count) / float64(total) * 100, nil
}

// MarketShareAll computes every manufacturer's share at a period. Shares of
// all manufacturers present in the market sum to 100 within floating-point
// tolerance.
func MarketShareAll(d *registration.Dataset, p registration.Period) (map[string]float64, error) {
	total := d.TotalAt(p)
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyMarket, p)
	}

	shares := make(map[string]float64)
	for _, name := range d.Manufacturers() {
		s, _ := d.Series(name)
		if c, ok := s.At(p); ok {
			shares[name] = float64(c) / float64(total) * 100
		}
	}
	return shares, nil
}

// AggregateTotal sums a series over an inclusive period range. An empty or
// inverted range sums to 0; that is not an error.
func AggregateTotal(s *registration.TimeSeries, from, to registration.Period) int64 {
	var total int64
	for _, p := range registration.PeriodRange(from, to) {
		if c, ok := s.At(p); ok {
			total += c
		}
	}
	return total
}
