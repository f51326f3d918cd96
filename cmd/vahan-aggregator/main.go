package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/config"
	"github.com/vahanmetrics/vahan/pkg/export"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/storage/postgres"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run the rollups once and exit")
	schedule = flag.String("schedule", "", "Cron schedule override (default from VAHAN_AGGREGATE_SCHEDULE)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if cfg.Storage.Type != "postgres" {
		logger.WithField("storage", cfg.Storage.Type).Error("aggregator requires the postgres backend")
		os.Exit(1)
	}

	store, err := postgres.NewPostgresStorage(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("postgres connection failed")
		os.Exit(1)
	}
	defer store.Close()

	aggregator := analytics.NewAggregator(store.DB())

	var archiver *export.Archiver
	if cfg.Export.ArchiveEnabled {
		archiver, err = export.NewArchiver(context.Background(), export.ArchiveConfig{
			Bucket:       cfg.Export.S3Bucket,
			Region:       cfg.Export.S3Region,
			Endpoint:     cfg.Export.S3Endpoint,
			AccessKey:    cfg.Export.S3AccessKey,
			SecretKey:    cfg.Export.S3SecretKey,
			UsePathStyle: cfg.Export.S3UsePathStyle,
			Prefix:       cfg.Export.S3Prefix,
		})
		if err != nil {
			logger.WithError(err).Error("archiver init failed")
			os.Exit(1)
		}
	}

	run := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		start := time.Now()
		if err := aggregator.AggregateAll(ctx); err != nil {
			return err
		}
		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("rollups refreshed")

		if archiver == nil {
			return nil
		}
		ds, err := store.Snapshot(ctx)
		if err != nil {
			return err
		}
		key, err := archiver.ArchiveSnapshot(ctx, ds, time.Now().UTC())
		if err != nil {
			return err
		}
		logger.WithField("key", key).Info("snapshot archived")
		return nil
	}

	if *runOnce {
		if err := run(); err != nil {
			logger.WithError(err).Error("aggregation failed")
			os.Exit(1)
		}
		return
	}

	spec := cfg.Aggregator.Schedule
	if *schedule != "" {
		spec = *schedule
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := run(); err != nil {
			logger.WithError(err).Error("scheduled aggregation failed")
		}
	}); err != nil {
		logger.WithError(err).Error("invalid cron schedule")
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", spec).Info("aggregator started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	<-c.Stop().Done()
}
