package analytics

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// ErrNoDataset is returned when no dataset has been loaded yet.
var ErrNoDataset = errors.New("analytics: no dataset loaded")

// DatasetProvider supplies the current dataset snapshot. storage.Storage
// implementations satisfy it directly; file-backed deployments use a
// SnapshotHolder fed by the ingest watcher.
type DatasetProvider interface {
	Snapshot(ctx context.Context) (*registration.Dataset, error)
}

// SnapshotHolder is an in-memory DatasetProvider whose dataset can be
// swapped atomically. Readers never block writers.
type SnapshotHolder struct {
	current atomic.Pointer[registration.Dataset]
}

// NewSnapshotHolder returns a holder primed with ds, which may be nil.
func NewSnapshotHolder(ds *registration.Dataset) *SnapshotHolder {
	h := &SnapshotHolder{}
	if ds != nil {
		h.current.Store(ds)
	}
	return h
}

// Store replaces the current dataset.
func (h *SnapshotHolder) Store(ds *registration.Dataset) {
	h.current.Store(ds)
}

// Snapshot implements DatasetProvider.
func (h *SnapshotHolder) Snapshot(_ context.Context) (*registration.Dataset, error) {
	ds := h.current.Load()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return ds, nil
}
