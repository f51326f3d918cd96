package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/export"
	"github.com/vahanmetrics/vahan/pkg/growth"
	"github.com/vahanmetrics/vahan/pkg/httputil"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

// writeAnalyticsError maps service errors to HTTP status codes. Malformed
// periods are the caller's fault (400); unknown manufacturers and missing
// history are absent resources (404); an empty market parses fine but has
// no computable answer (422); a server without a dataset is not ready (503).
func writeAnalyticsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registration.ErrBadPeriod):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, analytics.ErrUnknownManufacturer),
		errors.Is(err, growth.ErrInsufficientHistory):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, growth.ErrEmptyMarket):
		httputil.WriteUnprocessable(w, err.Error())
	case errors.Is(err, analytics.ErrNoDataset):
		httputil.WriteServiceUnavailable(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

// getOverview handles GET /api/v1/overview
func (s *Server) getOverview(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Overview(r.Context())
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// getYearlyTrend handles GET /api/v1/growth/yearly
func (s *Server) getYearlyTrend(w http.ResponseWriter, r *http.Request) {
	points, err := s.service.YearlyTrend(r.Context())
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, points)
}

// getQuarterlyTrend handles GET /api/v1/growth/quarterly
func (s *Server) getQuarterlyTrend(w http.ResponseWriter, r *http.Request) {
	points, err := s.service.QuarterlyTrend(r.Context())
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, points)
}

// getMarketShare handles GET /api/v1/market/share?period=YYYY-MM
func (s *Server) getMarketShare(w http.ResponseWriter, r *http.Request) {
	period := httputil.ParseQueryString(r, "period", "")
	resp, err := s.service.MarketShare(r.Context(), period)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// getSeasonalPattern handles GET /api/v1/seasonal
func (s *Server) getSeasonalPattern(w http.ResponseWriter, r *http.Request) {
	points, err := s.service.SeasonalPattern(r.Context())
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, points)
}

// getInsights handles GET /api/v1/insights
func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.service.Insights(r.Context())
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, insights)
}

// listManufacturers handles GET /api/v1/manufacturers
func (s *Server) listManufacturers(w http.ResponseWriter, r *http.Request) {
	ds, err := s.provider.Snapshot(r.Context())
	if err != nil || ds == nil {
		httputil.WriteServiceUnavailable(w, analytics.ErrNoDataset.Error())
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"manufacturers": ds.Manufacturers(),
		"revision":      ds.Revision(),
	})
}

// getTopManufacturers handles GET /api/v1/manufacturers/top?limit=N
func (s *Server) getTopManufacturers(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}
	ranks, err := s.service.TopManufacturers(r.Context(), limit)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, ranks)
}

// getTrendingManufacturers handles GET /api/v1/manufacturers/trending?limit=N
func (s *Server) getTrendingManufacturers(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}
	summaries, err := s.service.TrendingManufacturers(r.Context(), limit)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, summaries)
}

// getManufacturerStats handles
// GET /api/v1/manufacturers/{name}/stats?from=YYYY-MM&to=YYYY-MM
func (s *Server) getManufacturerStats(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	var from, to registration.Period
	if raw := httputil.ParseQueryString(r, "from", ""); raw != "" {
		parsed, err := registration.ParsePeriod(raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		from = parsed
	}
	if raw := httputil.ParseQueryString(r, "to", ""); raw != "" {
		parsed, err := registration.ParsePeriod(raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		to = parsed
	}

	resp, err := s.service.ManufacturerStats(r.Context(), name, from, to)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// growthResponse frames a single metric with the inputs that produced it.
type growthResponse struct {
	Manufacturer string        `json:"manufacturer"`
	Period       string        `json:"period,omitempty"`
	Metric       growth.Metric `json:"metric"`
}

// getManufacturerYoY handles
// GET /api/v1/manufacturers/{name}/growth/yoy?period=YYYY-MM|YYYYQN
func (s *Server) getManufacturerYoY(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	period := httputil.ParseQueryString(r, "period", "")
	metric, err := s.service.ManufacturerYoY(r.Context(), name, period)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, growthResponse{Manufacturer: name, Period: period, Metric: metric})
}

// getManufacturerQoQ handles
// GET /api/v1/manufacturers/{name}/growth/qoq?period=YYYYQN
func (s *Server) getManufacturerQoQ(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	period := httputil.ParseQueryString(r, "period", "")
	metric, err := s.service.ManufacturerQoQ(r.Context(), name, period)
	if err != nil {
		writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, growthResponse{Manufacturer: name, Period: period, Metric: metric})
}

// exportCSV handles GET /api/v1/export/csv
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	ds, err := s.provider.Snapshot(r.Context())
	if err != nil || ds == nil {
		httputil.WriteServiceUnavailable(w, analytics.ErrNoDataset.Error())
		return
	}

	filename := fmt.Sprintf("registrations-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Dataset-Revision", ds.Revision())
	if err := export.WriteCSV(w, ds); err != nil {
		s.logger.WithError(err).Error("csv export failed mid-stream")
	}
}

// reloadResponse reports what a reload brought in.
type reloadResponse struct {
	Revision      string `json:"revision"`
	Records       int    `json:"records"`
	Manufacturers int    `json:"manufacturers"`
}

// reloadDataset handles POST /api/v1/datasets/reload
func (s *Server) reloadDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.reload(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("dataset reload failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reloadResponse{
		Revision:      ds.Revision(),
		Records:       len(ds.Records()),
		Manufacturers: len(ds.Manufacturers()),
	})
}
