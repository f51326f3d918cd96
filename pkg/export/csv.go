// Package export renders datasets for consumers outside the API: CSV
// downloads and scheduled report snapshots archived to object storage.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// csvHeader is the long-format layout: one row per manufacturer-month.
var csvHeader = []string{"manufacturer", "period", "year", "month", "count"}

// WriteCSV streams the dataset in long format, ordered by manufacturer
// then period.
func WriteCSV(w io.Writer, ds *registration.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range ds.Records() {
		row := []string{
			rec.Manufacturer,
			rec.Period.String(),
			strconv.Itoa(rec.Period.Year),
			strconv.Itoa(int(rec.Period.Month)),
			strconv.FormatInt(rec.Count, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
