package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the vahan services.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Ingest metrics
	IngestFilesTotal     *prometheus.CounterVec
	IngestRowsTotal      *prometheus.CounterVec
	IngestDuration       prometheus.Histogram
	IngestReloadsTotal   *prometheus.CounterVec
	DatasetRecords       prometheus.Gauge
	DatasetManufacturers prometheus.Gauge
	DatasetLastReload    prometheus.Gauge

	// Analytics metrics
	ComputeDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database connection pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all instruments on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vahan_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vahan_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		IngestFilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_ingest_files_total",
				Help: "CSV files processed by the ingest layer",
			},
			[]string{"status"},
		),
		IngestRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_ingest_rows_total",
				Help: "Registration records parsed from CSV files",
			},
			[]string{"status"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vahan_ingest_duration_seconds",
				Help:    "Wall time of a full data directory load",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		IngestReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_ingest_reloads_total",
				Help: "Dataset reloads, by trigger (watcher, api, startup)",
			},
			[]string{"trigger", "status"},
		),
		DatasetRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vahan_dataset_records",
				Help: "Records in the currently loaded dataset",
			},
		),
		DatasetManufacturers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vahan_dataset_manufacturers",
				Help: "Manufacturers in the currently loaded dataset",
			},
		),
		DatasetLastReload: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vahan_dataset_last_reload_timestamp_seconds",
				Help: "Unix time of the last successful dataset reload",
			},
		),

		ComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vahan_compute_duration_seconds",
				Help:    "Analytics computation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vahan_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vahan_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vahan_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vahan_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.IngestFilesTotal,
		m.IngestRowsTotal,
		m.IngestDuration,
		m.IngestReloadsTotal,
		m.DatasetRecords,
		m.DatasetManufacturers,
		m.DatasetLastReload,
		m.ComputeDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveDataset updates the dataset gauges after a successful reload.
func (m *Metrics) ObserveDataset(records, manufacturers int) {
	if m == nil {
		return
	}
	m.DatasetRecords.Set(float64(records))
	m.DatasetManufacturers.Set(float64(manufacturers))
	m.DatasetLastReload.Set(float64(time.Now().Unix()))
}

// TimeCompute records the duration of one analytics computation.
func (m *Metrics) TimeCompute(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ComputeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordCacheHit increments the hit counter for a cache layer.
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the miss counter for a cache layer.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordStorageOp records one storage backend call with its duration.
func (m *Metrics) RecordStorageOp(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

// RecordIngestFile counts one processed CSV file.
func (m *Metrics) RecordIngestFile(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IngestFilesTotal.WithLabelValues(status).Inc()
}

// RecordIngestRows counts records parsed from a CSV file.
func (m *Metrics) RecordIngestRows(n int) {
	if m == nil || n == 0 {
		return
	}
	m.IngestRowsTotal.WithLabelValues("ok").Add(float64(n))
}

// ObservePoolStats mirrors database/sql pool statistics onto the gauges.
func (m *Metrics) ObservePoolStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter captures status code and written bytes for instrumentation.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments requests with counters, latency and
// response size histograms.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint exposes the registry on /metrics.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
