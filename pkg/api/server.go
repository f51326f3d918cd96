package api

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/httputil"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

// ReloadFunc re-reads the underlying data files and returns the freshly
// loaded dataset. The server only mounts the reload endpoint when one is
// provided.
type ReloadFunc func(ctx context.Context) (*registration.Dataset, error)

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Reload      ReloadFunc
	CORSOrigins []string
}

// Server routes analytics requests to the service layer.
type Server struct {
	router   *mux.Router
	handler  http.Handler
	service  *analytics.Service
	provider analytics.DatasetProvider
	reload   ReloadFunc
	logger   *observability.Logger
}

// NewServer creates an API server over the analytics service. provider is
// used by endpoints that need the raw dataset (CSV export, reload status).
func NewServer(service *analytics.Service, provider analytics.DatasetProvider, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}

	s := &Server{
		router:   mux.NewRouter(),
		service:  service,
		provider: provider,
		reload:   opts.Reload,
		logger:   logger,
	}
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
	}
	if opts.Metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	if len(opts.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(opts.CORSOrigins))
	}
	s.handler = httputil.Chain(middlewares...)(s.router)

	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Market-wide views
	v1.HandleFunc("/overview", s.getOverview).Methods("GET")
	v1.HandleFunc("/growth/yearly", s.getYearlyTrend).Methods("GET")
	v1.HandleFunc("/growth/quarterly", s.getQuarterlyTrend).Methods("GET")
	v1.HandleFunc("/market/share", s.getMarketShare).Methods("GET")
	v1.HandleFunc("/seasonal", s.getSeasonalPattern).Methods("GET")
	v1.HandleFunc("/insights", s.getInsights).Methods("GET")

	// Manufacturer views
	v1.HandleFunc("/manufacturers", s.listManufacturers).Methods("GET")
	v1.HandleFunc("/manufacturers/top", s.getTopManufacturers).Methods("GET")
	v1.HandleFunc("/manufacturers/trending", s.getTrendingManufacturers).Methods("GET")
	v1.HandleFunc("/manufacturers/{name}/stats", s.getManufacturerStats).Methods("GET")
	v1.HandleFunc("/manufacturers/{name}/growth/yoy", s.getManufacturerYoY).Methods("GET")
	v1.HandleFunc("/manufacturers/{name}/growth/qoq", s.getManufacturerQoQ).Methods("GET")

	// Dataset operations
	v1.HandleFunc("/export/csv", s.exportCSV).Methods("GET")
	if s.reload != nil {
		v1.HandleFunc("/datasets/reload", s.reloadDataset).Methods("POST")
	}
}

// ServeHTTP implements http.Handler, dispatching through the middleware
// chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is implemented by types that mount their own routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes mounts additional routes on the server's router.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
