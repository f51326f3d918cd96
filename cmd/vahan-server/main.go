package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/api"
	"github.com/vahanmetrics/vahan/pkg/config"
	"github.com/vahanmetrics/vahan/pkg/export"
	"github.com/vahanmetrics/vahan/pkg/ingest"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
	"github.com/vahanmetrics/vahan/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("tracing disabled: otel init failed")
		}
	}

	src, err := buildDataSource(ctx, cfg, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("data source init failed")
		os.Exit(1)
	}

	service, err := analytics.NewService(src.provider)
	if err != nil {
		logger.WithError(err).Error("analytics service init failed")
		os.Exit(1)
	}
	service.SetMetrics(metrics)

	reload := src.reload
	if src.archiver != nil && reload != nil {
		// Every successful reload also ships a CSV snapshot to S3.
		inner := reload
		reload = func(ctx context.Context) (*registration.Dataset, error) {
			ds, err := inner(ctx)
			if err != nil {
				return nil, err
			}
			go func() {
				defer observability.RecoverPanic(logger, "snapshot archive")
				actx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				key, err := src.archiver.ArchiveSnapshot(actx, ds, time.Now().UTC())
				if err != nil {
					logger.WithError(err).Warn("snapshot archive failed")
					return
				}
				logger.WithField("key", key).Info("snapshot archived")
			}()
			return ds, nil
		}
	}

	apiServer := api.NewServer(service, src.provider, api.Options{
		Logger:      logger,
		Metrics:     metrics,
		Reload:      reload,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	var handler http.Handler = apiServer
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "vahan-api")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics live on their own port so they stay reachable
	// even when the API port is saturated.
	checker := observability.NewHealthChecker(src.db, src.redis)
	checker.RegisterCheck("dataset", observability.DatasetCheck(func() bool {
		ds, err := src.provider.Snapshot(ctx)
		return err == nil && ds != nil
	}))
	if src.storeHealth != nil {
		checker.RegisterCheck("storage", func(ctx context.Context) observability.DependencyStatus {
			start := time.Now()
			status := observability.DependencyStatus{Status: observability.StatusHealthy, Timestamp: start}
			if err := src.storeHealth(ctx); err != nil {
				status.Status = observability.StatusUnhealthy
				status.Message = err.Error()
			}
			status.Latency = time.Since(start)
			return status
		})
	}
	if src.archiver != nil {
		checker.RegisterCheck("archive", archiveCheck(src.archiver))
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	if metrics != nil && src.db != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-watchCtx.Done():
					return
				case <-ticker.C:
					metrics.ObservePoolStats(src.db.Stats())
				}
			}
		}()
	}
	if src.watcher != nil {
		go func() {
			defer observability.RecoverPanic(logger, "ingest watcher")
			src.watcher.Run(watchCtx, func(ds *registration.Dataset) {
				src.holder.Store(ds)
				if metrics != nil {
					metrics.IngestReloadsTotal.WithLabelValues("watcher", "success").Inc()
					metrics.ObserveDataset(len(ds.Records()), len(ds.Manufacturers()))
				}
				logger.WithField("revision", ds.Revision()).Info("dataset reloaded by watcher")
			}, func(err error) {
				if metrics != nil {
					metrics.IngestReloadsTotal.WithLabelValues("watcher", "error").Inc()
				}
				logger.WithError(err).Warn("watcher reload failed")
			})
		}()
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopWatch()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if src.closer != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return src.closer()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"storage": cfg.Storage.Type,
		}).Info("vahan metrics server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
}

// archiveCheck probes the S3 bucket behind the report archiver.
func archiveCheck(archiver *export.Archiver) observability.CheckFunc {
	return func(ctx context.Context) observability.DependencyStatus {
		start := time.Now()
		status := observability.DependencyStatus{
			Status:    observability.StatusHealthy,
			Timestamp: start,
		}
		if err := archiver.HealthCheck(ctx); err != nil {
			// Archival is best-effort; a missing bucket only degrades.
			status.Status = observability.StatusDegraded
			status.Message = err.Error()
		}
		status.Latency = time.Since(start)
		return status
	}
}

// reloadStorage re-reads the data directory and replaces the stored rows
// year by year, so removed months disappear along with changed ones.
func reloadStorage(ctx context.Context, loader *ingest.Loader, store storage.Storage, dir string) (*registration.Dataset, error) {
	ds, err := loader.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	byYear := make(map[int][]registration.Record)
	for _, rec := range ds.Records() {
		byYear[rec.Period.Year] = append(byYear[rec.Period.Year], rec)
	}
	for year, records := range byYear {
		if err := store.ReplaceYear(ctx, year, records); err != nil {
			return nil, err
		}
	}
	return store.Snapshot(ctx)
}
