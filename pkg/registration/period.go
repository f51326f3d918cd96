package registration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadPeriod is wrapped by all period and quarter parse failures so
// callers can distinguish malformed input from missing data.
var ErrBadPeriod = errors.New("invalid period")

// Period is a calendar month, the storage grain of the Vahan datasets.
// The zero value is invalid; construct via NewPeriod or ParsePeriod.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod creates a Period, validating the month range.
func NewPeriod(year int, month time.Month) (Period, error) {
	if month < time.January || month > time.December {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrBadPeriod, month)
	}
	if year < 1900 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrBadPeriod, year)
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod parses the wire format "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("%w: %q: want YYYY-MM", ErrBadPeriod, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	return NewPeriod(year, time.Month(month))
}

// String formats the period as "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MarshalJSON renders the period in its wire format.
func (p Period) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses the "YYYY-MM" wire format.
func (p *Period) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// IsZero reports whether the period is the invalid zero value.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Before reports whether p is chronologically before other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// After reports whether p is chronologically after other.
func (p Period) After(other Period) bool {
	return other.Before(p)
}

// Compare returns -1, 0 or 1 ordering p against other.
func (p Period) Compare(other Period) int {
	switch {
	case p.Before(other):
		return -1
	case p.After(other):
		return 1
	default:
		return 0
	}
}

// YearEarlier returns the same month one year earlier.
func (p Period) YearEarlier() Period {
	return Period{Year: p.Year - 1, Month: p.Month}
}

// PrevMonth returns the immediately preceding month.
func (p Period) PrevMonth() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// NextMonth returns the immediately following month.
func (p Period) NextMonth() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Quarter returns the calendar quarter containing the period.
func (p Period) Quarter() Quarter {
	return Quarter{Year: p.Year, Q: (int(p.Month)-1)/3 + 1}
}

// Time returns the first day of the month in UTC, for date arithmetic
// and SQL parameters.
func (p Period) Time() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// PeriodRange returns all months from 'from' to 'to' inclusive. An inverted
// range yields nil.
func PeriodRange(from, to Period) []Period {
	if to.Before(from) {
		return nil
	}
	var out []Period
	for p := from; !p.After(to); p = p.NextMonth() {
		out = append(out, p)
	}
	return out
}

// Quarter identifies a calendar quarter.
type Quarter struct {
	Year int
	Q    int // 1..4
}

// ParseQuarter parses "YYYYQN", e.g. "2024Q3".
func ParseQuarter(s string) (Quarter, error) {
	idx := strings.IndexByte(s, 'Q')
	if idx < 0 {
		idx = strings.IndexByte(s, 'q')
	}
	if idx <= 0 || idx != len(s)-2 {
		return Quarter{}, fmt.Errorf("%w: %q: want YYYYQN", ErrBadPeriod, s)
	}
	year, err := strconv.Atoi(s[:idx])
	if err != nil {
		return Quarter{}, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	q, err := strconv.Atoi(s[idx+1:])
	if err != nil || q < 1 || q > 4 {
		return Quarter{}, fmt.Errorf("%w: %q: quarter must be 1-4", ErrBadPeriod, s)
	}
	return Quarter{Year: year, Q: q}, nil
}

// String formats the quarter as "YYYYQN".
func (q Quarter) String() string {
	return fmt.Sprintf("%04dQ%d", q.Year, q.Q)
}

// MarshalJSON renders the quarter in its wire format.
func (q Quarter) MarshalJSON() ([]byte, error) {
	return []byte(`"` + q.String() + `"`), nil
}

// Prev returns the immediately preceding quarter.
func (q Quarter) Prev() Quarter {
	if q.Q == 1 {
		return Quarter{Year: q.Year - 1, Q: 4}
	}
	return Quarter{Year: q.Year, Q: q.Q - 1}
}

// YearEarlier returns the same quarter one year earlier.
func (q Quarter) YearEarlier() Quarter {
	return Quarter{Year: q.Year - 1, Q: q.Q}
}

// Before reports whether q is chronologically before other.
func (q Quarter) Before(other Quarter) bool {
	if q.Year != other.Year {
		return q.Year < other.Year
	}
	return q.Q < other.Q
}

// Months returns the three periods that make up the quarter.
func (q Quarter) Months() [3]Period {
	first := time.Month((q.Q-1)*3 + 1)
	return [3]Period{
		{Year: q.Year, Month: first},
		{Year: q.Year, Month: first + 1},
		{Year: q.Year, Month: first + 2},
	}
}
