package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vahanmetrics/vahan/pkg/registration"
)

// Watcher reloads the data directory when export files change, debouncing
// the burst of events a file copy produces.
type Watcher struct {
	loader   *Loader
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a Watcher over dir.
func NewWatcher(loader *Loader, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		loader:   loader,
		dir:      dir,
		debounce: debounce,
		watcher:  fsw,
	}, nil
}

// Run blocks until ctx is cancelled, invoking apply with a fresh Dataset
// after each debounced change to a vahan_data_*.csv file. Load errors go to
// onError and watching continues.
func (w *Watcher) Run(ctx context.Context, apply func(*registration.Dataset), onError func(error)) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !dataFilePattern.MatchString(filepath.Base(event.Name)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			onError(fmt.Errorf("watch %s: %w", w.dir, err))

		case <-timerC:
			ds, err := w.loader.LoadDir(w.dir)
			if err != nil {
				onError(err)
				continue
			}
			apply(ds)
		}
	}
}
