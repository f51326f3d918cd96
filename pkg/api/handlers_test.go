package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vahanmetrics/vahan/pkg/analytics"
	"github.com/vahanmetrics/vahan/pkg/registration"
)

func rec(name string, year int, month time.Month, count int64) registration.Record {
	return registration.Record{
		Manufacturer: name,
		Period:       registration.Period{Year: year, Month: month},
		Count:        count,
	}
}

func testDataset(t *testing.T) *registration.Dataset {
	t.Helper()
	ds, err := registration.NewDataset([]registration.Record{
		rec("ACME", 2023, time.January, 100),
		rec("ACME", 2023, time.February, 110),
		rec("ACME", 2024, time.January, 126),
		rec("ACME", 2024, time.February, 121),
		rec("BOLT", 2023, time.January, 50),
		rec("BOLT", 2023, time.February, 40),
		rec("BOLT", 2024, time.January, 60),
		rec("BOLT", 2024, time.February, 66),
	}, "rev-1")
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	holder := analytics.NewSnapshotHolder(testDataset(t))
	svc, err := analytics.NewService(holder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewServer(svc, holder, opts)
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetOverview(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/overview")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		TotalRegistrations int64  `json:"total_registrations"`
		ManufacturerCount  int    `json:"manufacturer_count"`
		DatasetRevision    string `json:"dataset_revision"`
	}
	decodeBody(t, rr, &body)
	if body.TotalRegistrations != 673 {
		t.Errorf("total = %d, want 673", body.TotalRegistrations)
	}
	if body.ManufacturerCount != 2 {
		t.Errorf("manufacturers = %d, want 2", body.ManufacturerCount)
	}
	if body.DatasetRevision != "rev-1" {
		t.Errorf("revision = %q", body.DatasetRevision)
	}
}

func TestOverviewWithoutDataset(t *testing.T) {
	holder := analytics.NewSnapshotHolder(nil)
	svc, err := analytics.NewService(holder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	srv := NewServer(svc, holder, Options{})

	rr := doRequest(t, srv, "GET", "/api/v1/overview")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestGetYearlyTrend(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/growth/yearly")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var points []struct {
		Year       int      `json:"year"`
		Total      int64    `json:"total"`
		YoYPercent *float64 `json:"yoy_percent"`
	}
	decodeBody(t, rr, &points)
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if points[0].Year != 2023 || points[0].YoYPercent != nil {
		t.Errorf("first year = %+v", points[0])
	}
	if points[1].Total != 373 || points[1].YoYPercent == nil {
		t.Errorf("second year = %+v", points[1])
	}
}

func TestGetTopManufacturersLimit(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/top?limit=1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var ranks []struct {
		Manufacturer string `json:"manufacturer"`
		Total        int64  `json:"total"`
	}
	decodeBody(t, rr, &ranks)
	if len(ranks) != 1 || ranks[0].Manufacturer != "ACME" {
		t.Errorf("ranks = %+v", ranks)
	}
}

func TestGetTopManufacturersBadLimit(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/top?limit=lots")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListManufacturers(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Manufacturers []string `json:"manufacturers"`
		Revision      string   `json:"revision"`
	}
	decodeBody(t, rr, &body)
	if len(body.Manufacturers) != 2 || body.Revision != "rev-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestGetManufacturerStats(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/ACME/stats")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Manufacturer string            `json:"manufacturer"`
		Records      []json.RawMessage `json:"records"`
	}
	decodeBody(t, rr, &body)
	if body.Manufacturer != "ACME" || len(body.Records) != 4 {
		t.Errorf("stats = %+v", body)
	}
}

func TestGetManufacturerStatsClipped(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/ACME/stats?from=2024-01")

	var body struct {
		Records []json.RawMessage `json:"records"`
	}
	decodeBody(t, rr, &body)
	if len(body.Records) != 2 {
		t.Errorf("records = %d, want 2", len(body.Records))
	}
}

func TestGetManufacturerStatsBadRange(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/ACME/stats?from=notaperiod")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGetManufacturerStatsUnknown(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/NOPE/stats")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestGetManufacturerYoY(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/ACME/growth/yoy?period=2024-01")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Manufacturer string `json:"manufacturer"`
		Metric       struct {
			Value *float64 `json:"value"`
		} `json:"metric"`
	}
	decodeBody(t, rr, &body)
	if body.Metric.Value == nil || *body.Metric.Value != 26 {
		t.Errorf("metric = %+v", body.Metric)
	}
}

func TestGetManufacturerYoYStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		path string
		want int
	}{
		{"malformed period", "/api/v1/manufacturers/ACME/growth/yoy?period=banana", http.StatusBadRequest},
		{"no prior year", "/api/v1/manufacturers/ACME/growth/yoy?period=2023-01", http.StatusNotFound},
		{"unknown manufacturer", "/api/v1/manufacturers/NOPE/growth/yoy", http.StatusNotFound},
	}

	srv := newTestServer(t, Options{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, srv, "GET", tc.path)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestGetManufacturerQoQ(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/manufacturers/ACME/growth/qoq?period=1stquarter")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGetMarketShare(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/market/share?period=2024-02")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Period string `json:"period"`
		Total  int64  `json:"total"`
		Shares []struct {
			Manufacturer string  `json:"manufacturer"`
			SharePercent float64 `json:"share_percent"`
		} `json:"shares"`
	}
	decodeBody(t, rr, &body)
	if body.Period != "2024-02" || body.Total != 187 || len(body.Shares) != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestGetMarketShareEmptyPeriod(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/market/share?period=2019-01")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/export/csv")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rev := rr.Header().Get("X-Dataset-Revision"); rev != "rev-1" {
		t.Errorf("revision header = %q", rev)
	}
	body, _ := io.ReadAll(rr.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 9 {
		t.Errorf("lines = %d, want header + 8 records", len(lines))
	}
	if lines[0] != "manufacturer,period,year,month,count" {
		t.Errorf("header = %q", lines[0])
	}
}

func TestReloadDataset(t *testing.T) {
	reloaded, err := registration.NewDataset([]registration.Record{
		rec("ACME", 2024, time.March, 140),
	}, "rev-2")
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}

	srv := newTestServer(t, Options{
		Reload: func(ctx context.Context) (*registration.Dataset, error) {
			return reloaded, nil
		},
	})

	rr := doRequest(t, srv, "POST", "/api/v1/datasets/reload")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body reloadResponse
	decodeBody(t, rr, &body)
	if body.Revision != "rev-2" || body.Records != 1 || body.Manufacturers != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestReloadDatasetFailure(t *testing.T) {
	srv := newTestServer(t, Options{
		Reload: func(ctx context.Context) (*registration.Dataset, error) {
			return nil, errors.New("disk gone")
		},
	})
	rr := doRequest(t, srv, "POST", "/api/v1/datasets/reload")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestReloadNotMountedWithoutFunc(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "POST", "/api/v1/datasets/reload")
	if rr.Code == http.StatusOK {
		t.Error("reload should not be mounted without a reload func")
	}
}

func TestRequestIDHeaderPresent(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := doRequest(t, srv, "GET", "/api/v1/overview")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}
