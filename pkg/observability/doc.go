// Package observability bundles the operational concerns shared by the
// vahan binaries: structured JSON logging over slog, Prometheus metrics,
// OpenTelemetry tracing, health probes, and graceful shutdown.
//
// A binary typically wires it up like this:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//
// Health endpoints distinguish liveness (process up) from readiness
// (dependencies reachable, dataset loaded). Redis being down degrades
// readiness rather than failing it, since the cache is optional.
package observability
