package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/vahanmetrics/vahan/pkg/config"
	"github.com/vahanmetrics/vahan/pkg/ingest"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
	"github.com/vahanmetrics/vahan/pkg/storage"
	"github.com/vahanmetrics/vahan/pkg/storage/postgres"
)

var (
	dataDir    = flag.String("data-dir", "", "Directory of vahan_data_*.csv exports (default from VAHAN_DATA_DIR)")
	appendMode = flag.Bool("append", false, "Insert records instead of replacing whole years")
)

// vahan-import loads a directory of yearly CSV exports into the configured
// persistent backend. The default mode replaces each year found in the
// files so re-imports stay idempotent.
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	dir := cfg.Ingest.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}

	var store storage.Storage
	switch cfg.Storage.Type {
	case "sqlite":
		store, err = storage.NewSQLiteStorage(cfg.Storage.SQLitePath)
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.Storage)
	default:
		logger.WithField("storage", cfg.Storage.Type).Error("import requires a persistent backend (sqlite or postgres)")
		os.Exit(1)
	}
	if err != nil {
		logger.WithError(err).Error("storage init failed")
		os.Exit(1)
	}
	defer store.Close()

	aliases, err := ingest.LoadAliases(cfg.Ingest.AliasFile)
	if err != nil {
		logger.WithError(err).Error("alias file load failed")
		os.Exit(1)
	}

	start := time.Now()
	ds, err := ingest.NewLoader(aliases).LoadDir(dir)
	if err != nil {
		logger.WithError(err).Error("data directory load failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	records := ds.Records()
	if *appendMode {
		if err := store.InsertRecords(ctx, records); err != nil {
			logger.WithError(err).Error("insert failed")
			os.Exit(1)
		}
	} else {
		byYear := make(map[int][]registration.Record)
		for _, rec := range records {
			byYear[rec.Period.Year] = append(byYear[rec.Period.Year], rec)
		}
		for year, yearRecords := range byYear {
			if err := store.ReplaceYear(ctx, year, yearRecords); err != nil {
				logger.WithError(err).WithField("year", year).Error("year replace failed")
				os.Exit(1)
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"records":       len(records),
		"manufacturers": len(ds.Manufacturers()),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("import complete")
}
