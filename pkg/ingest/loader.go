package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

// dataFilePattern matches the per-year export files, e.g. vahan_data_2023.csv.
var dataFilePattern = regexp.MustCompile(`^vahan_data_(\d{4})\.csv$`)

// Loader loads a directory of yearly CSV exports into a Dataset.
type Loader struct {
	reader  *Reader
	metrics *observability.Metrics
}

// NewLoader creates a Loader. aliases may be nil.
func NewLoader(aliases *AliasMap) *Loader {
	return &Loader{reader: NewReader(aliases)}
}

// SetMetrics attaches instruments for per-file and per-row ingest counts.
func (l *Loader) SetMetrics(m *observability.Metrics) {
	l.metrics = m
}

// LoadDir reads every vahan_data_<year>.csv under dir, in parallel, and
// merges the results into a single Dataset stamped with a fresh revision.
// A directory with no matching files yields an empty Dataset, not an error.
func (l *Loader) LoadDir(dir string) (*registration.Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	type yearFile struct {
		path string
		year int
	}
	var files []yearFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dataFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		files = append(files, yearFile{filepath.Join(dir, e.Name()), year})
	}

	var (
		mu      sync.Mutex
		records []registration.Record
	)
	var g errgroup.Group
	for _, f := range files {
		g.Go(func() error {
			src, err := os.Open(f.path)
			if err != nil {
				l.metrics.RecordIngestFile(err)
				return fmt.Errorf("open %s: %w", f.path, err)
			}
			defer src.Close()

			recs, err := l.reader.ReadYear(src, f.year)
			l.metrics.RecordIngestFile(err)
			if err != nil {
				return err
			}
			l.metrics.RecordIngestRows(len(recs))
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return registration.NewDataset(records, uuid.NewString())
}
