// Package ingest parses the Vahan registration CSV exports into typed
// records and keeps a live Dataset loaded from a data directory.
//
// The source files are wide-format, one file per year:
//
//	SNo,Manufacturer,JAN,FEB,...,DEC,TOTAL
//
// encoded latin1, with arbitrary missing trailing month columns and
// occasional non-numeric cells, both of which are tolerated.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

var monthColumns = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Reader parses wide-format Vahan CSVs.
type Reader struct {
	aliases *AliasMap
}

// NewReader creates a Reader. aliases may be nil.
func NewReader(aliases *AliasMap) *Reader {
	return &Reader{aliases: aliases}
}

// ReadYear parses one year's CSV into records. Cells that fail numeric
// parsing are dropped, matching the source exports which mix blanks and
// footnote text into data columns.
func (r *Reader) ReadYear(src io.Reader, year int) ([]registration.Record, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(src))
	cr.FieldsPerRecord = -1 // column count varies by export year
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header for %d: %w", year, err)
	}

	nameIdx, monthIdx, err := mapColumns(header)
	if err != nil {
		return nil, fmt.Errorf("map columns for %d: %w", year, err)
	}

	var records []registration.Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d for %d: %w", line, year, err)
		}
		line++

		if nameIdx >= len(row) {
			continue
		}
		name := r.normalizeName(row[nameIdx])
		if name == "" {
			continue
		}

		for idx, month := range monthIdx {
			if idx >= len(row) {
				continue
			}
			count, ok := parseCount(row[idx])
			if !ok {
				continue
			}
			records = append(records, registration.Record{
				Manufacturer: name,
				Period:       registration.Period{Year: year, Month: month},
				Count:        count,
			})
		}
	}
	return records, nil
}

// mapColumns locates the manufacturer column and every month column in the
// header. Exports sometimes drop trailing months mid-year, so any subset of
// months is acceptable; zero months is not.
func mapColumns(header []string) (nameIdx int, monthIdx map[int]time.Month, err error) {
	nameIdx = -1
	monthIdx = make(map[int]time.Month)
	for i, col := range header {
		key := strings.ToUpper(strings.TrimSpace(col))
		switch {
		case key == "MANUFACTURER" || key == "MAKER":
			nameIdx = i
		default:
			if m, ok := monthColumns[key]; ok {
				monthIdx[i] = m
			}
		}
	}
	if nameIdx < 0 {
		return 0, nil, fmt.Errorf("no manufacturer column in header %v", header)
	}
	if len(monthIdx) == 0 {
		return 0, nil, fmt.Errorf("no month columns in header %v", header)
	}
	return nameIdx, monthIdx, nil
}

// normalizeName trims and collapses whitespace, then applies the alias map.
func (r *Reader) normalizeName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if r.aliases != nil {
		name = r.aliases.Resolve(name)
	}
	return name
}

// parseCount parses a registration count cell. Thousands separators appear
// in some exports; negative and non-numeric cells are rejected.
func parseCount(cell string) (int64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
