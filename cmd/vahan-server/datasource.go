package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/api"
	"github.com/vahanmetrics/vahan/pkg/config"
	"github.com/vahanmetrics/vahan/pkg/export"
	"github.com/vahanmetrics/vahan/pkg/ingest"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
	"github.com/vahanmetrics/vahan/pkg/storage"
	"github.com/vahanmetrics/vahan/pkg/storage/postgres"
)

// dataSource bundles everything a deployment shape provides: where
// snapshots come from, how to reload, and which handles the health
// checker should probe.
type dataSource struct {
	provider analytics.DatasetProvider
	holder   *analytics.SnapshotHolder
	reload   api.ReloadFunc
	watcher  *ingest.Watcher
	archiver *export.Archiver
	db       *sql.DB
	redis    *redis.Client
	closer   func() error

	// storeHealth probes backends the checker has no native handle for
	// (sqlite). Nil when the db pool is probed directly.
	storeHealth func(context.Context) error
}

// buildDataSource wires the configured backend. The memory backend serves
// straight from CSV files with a watcher keeping the snapshot fresh; the
// sqlite and postgres backends persist rows and rebuild snapshots on
// demand.
func buildDataSource(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*dataSource, error) {
	aliases, err := ingest.LoadAliases(cfg.Ingest.AliasFile)
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	loader := ingest.NewLoader(aliases)
	loader.SetMetrics(metrics)

	src := &dataSource{}
	if cfg.Export.ArchiveEnabled {
		archiver, err := export.NewArchiver(ctx, export.ArchiveConfig{
			Bucket:       cfg.Export.S3Bucket,
			Region:       cfg.Export.S3Region,
			Endpoint:     cfg.Export.S3Endpoint,
			AccessKey:    cfg.Export.S3AccessKey,
			SecretKey:    cfg.Export.S3SecretKey,
			UsePathStyle: cfg.Export.S3UsePathStyle,
			Prefix:       cfg.Export.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init archiver: %w", err)
		}
		src.archiver = archiver
	}

	switch cfg.Storage.Type {
	case "memory":
		if err := src.wireMemory(cfg, loader, logger, metrics); err != nil {
			return nil, err
		}
	case "sqlite":
		store, err := storage.NewSQLiteStorage(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		src.storeHealth = store.HealthCheck
		src.wireStore(ctx, cfg, loader, store, logger, metrics)
	case "postgres":
		pg, err := postgres.NewPostgresStorage(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		src.db = pg.DB()

		var store storage.Storage = pg
		if cfg.Storage.CacheEnabled && cfg.Storage.RedisURL != "" {
			client, err := postgres.NewRedisClient(cfg.Storage)
			if err != nil {
				logger.WithError(err).Warn("redis unavailable, serving uncached")
			} else {
				src.redis = client
				cache := postgres.NewRedisCache(pg, client, cfg.Storage.CacheTTL)
				cache.SetMetrics(metrics)
				store = cache
			}
		}
		src.wireStore(ctx, cfg, loader, store, logger, metrics)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	return src, nil
}

// wireMemory serves snapshots from an atomically swapped holder fed by the
// CSV loader and, optionally, the fsnotify watcher.
func (src *dataSource) wireMemory(cfg *config.Config, loader *ingest.Loader, logger *observability.Logger, metrics *observability.Metrics) error {
	holder := analytics.NewSnapshotHolder(nil)
	src.holder = holder
	src.provider = holder

	loadInto := func(trigger string) (*registration.Dataset, error) {
		start := time.Now()
		ds, err := loader.LoadDir(cfg.Ingest.DataDir)
		if err != nil {
			if metrics != nil {
				metrics.IngestReloadsTotal.WithLabelValues(trigger, "error").Inc()
			}
			return nil, err
		}
		holder.Store(ds)
		if metrics != nil {
			metrics.IngestReloadsTotal.WithLabelValues(trigger, "success").Inc()
			metrics.IngestDuration.Observe(time.Since(start).Seconds())
			metrics.ObserveDataset(len(ds.Records()), len(ds.Manufacturers()))
		}
		return ds, nil
	}

	if ds, err := loadInto("startup"); err != nil {
		logger.WithError(err).Warn("initial load failed, waiting for data files")
	} else {
		logger.WithFields(map[string]interface{}{
			"records":  len(ds.Records()),
			"revision": ds.Revision(),
		}).Info("dataset loaded")
	}

	src.reload = func(ctx context.Context) (*registration.Dataset, error) {
		return loadInto("api")
	}

	if cfg.Ingest.WatchEnabled {
		watcher, err := ingest.NewWatcher(loader, cfg.Ingest.DataDir, cfg.Ingest.WatchDebounce)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		src.watcher = watcher
	}
	return nil
}

// wireStore serves snapshots from a persistent backend. Reloads re-read
// the CSV directory and replace rows year by year.
func (src *dataSource) wireStore(ctx context.Context, cfg *config.Config, loader *ingest.Loader, backend storage.Storage, logger *observability.Logger, metrics *observability.Metrics) {
	store := storage.NewInstrumentedStorage(backend, cfg.Storage.Type, metrics)
	src.provider = store
	src.closer = store.Close
	src.reload = func(ctx context.Context) (*registration.Dataset, error) {
		ds, err := reloadStorage(ctx, loader, store, cfg.Ingest.DataDir)
		if err != nil {
			if metrics != nil {
				metrics.IngestReloadsTotal.WithLabelValues("api", "error").Inc()
			}
			return nil, err
		}
		if metrics != nil {
			metrics.IngestReloadsTotal.WithLabelValues("api", "success").Inc()
			metrics.ObserveDataset(len(ds.Records()), len(ds.Manufacturers()))
		}
		return ds, nil
	}

	if ds, err := store.Snapshot(ctx); err != nil {
		logger.WithError(err).Warn("initial snapshot failed")
	} else if metrics != nil {
		metrics.ObserveDataset(len(ds.Records()), len(ds.Manufacturers()))
	}
}
