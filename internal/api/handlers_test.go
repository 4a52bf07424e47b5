package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/cache"
	"github.com/1509Chamma/ukenergydashboard/internal/config"
	"github.com/1509Chamma/ukenergydashboard/internal/db"
	"github.com/1509Chamma/ukenergydashboard/internal/ingest"
	"github.com/1509Chamma/ukenergydashboard/internal/models"
	"github.com/1509Chamma/ukenergydashboard/internal/query"
)

type stubReader struct {
	records []models.Record
	reads   atomic.Int64
}

func (s *stubReader) Read(_ context.Context, family models.Family, filter db.Filter) ([]models.Record, error) {
	s.reads.Add(1)
	var out []models.Record
	for _, rec := range s.records {
		if rec.TS.Before(filter.Start) || rec.TS.After(filter.End) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubReader) Bounds(context.Context) (time.Time, time.Time, bool, error) {
	if len(s.records) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return s.records[0].TS, s.records[len(s.records)-1].TS, true, nil
}

type stubRefresh struct {
	last *ingest.CycleStats
}

func (s *stubRefresh) LastCycle() *ingest.CycleStats { return s.last }

func newTestServer(t *testing.T, cfg config.Config, reader *stubReader, refresh RefreshStatus) *Server {
	t.Helper()
	if refresh == nil {
		refresh = &stubRefresh{}
	}
	return New(cfg, query.New(reader), cache.New(time.Minute), refresh)
}

func demandReader() *stubReader {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]models.Record, 0, 4)
	for i := 0; i < 4; i++ {
		recs = append(recs, models.Record{
			TS:      base.Add(time.Duration(i) * 30 * time.Minute),
			Metrics: map[string]float64{"nd": 28000 + 100*float64(i)},
		})
	}
	return &stubReader{records: recs}
}

func get(t *testing.T, s *Server, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), nil)
	if w := get(t, s, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
}

func TestQueryReturnsWideTable(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), nil)
	w := get(t, s, "/api/v1/query/demand?start=2024-01-01&end=2024-01-01")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var table query.Table
	if err := json.Unmarshal(w.Body.Bytes(), &table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(table.Rows))
	}
	if table.Columns[0] != "ts" {
		t.Fatalf("first column must be ts, got %v", table.Columns)
	}
}

func TestQueryValidation(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), nil)

	cases := map[string]string{
		"unknown family":    "/api/v1/query/oil?start=2024-01-01&end=2024-01-02",
		"missing start":     "/api/v1/query/demand?end=2024-01-02",
		"missing end":       "/api/v1/query/demand?start=2024-01-01",
		"inverted range":    "/api/v1/query/demand?start=2024-01-05&end=2024-01-01",
		"bad time format":   "/api/v1/query/demand?start=01/01/2024&end=2024-01-02",
		"bad region list":   "/api/v1/query/demand?start=2024-01-01&end=2024-01-02&regions=a,b",
		"regions on demand": "/api/v1/query/demand?start=2024-01-01&end=2024-01-02&regions=1",
	}
	for name, path := range cases {
		if w := get(t, s, path); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d (%s)", name, w.Code, w.Body.String())
		}
	}
}

func TestBareEndDateExtendsToEndOfDay(t *testing.T) {
	reader := demandReader()
	s := newTestServer(t, config.Config{}, reader, nil)

	// All four half-hour records fall inside 2024-01-01; a bare end date
	// that cut off at midnight would return none of them.
	w := get(t, s, "/api/v1/summary/demand?start=2024-01-01&end=2024-01-01")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var summary query.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Rows != 4 {
		t.Fatalf("expected 4 rows in the day, got %d", summary.Rows)
	}
	if summary.Metrics["nd"].Count != 4 {
		t.Fatalf("nd count = %d", summary.Metrics["nd"].Count)
	}
}

func TestQueryServedFromCacheUntilPurged(t *testing.T) {
	reader := demandReader()
	c := cache.New(time.Minute)
	s := New(config.Config{}, query.New(reader), c, &stubRefresh{})

	path := "/api/v1/query/demand?start=2024-01-01&end=2024-01-01"
	get(t, s, path)
	get(t, s, path)
	if got := reader.reads.Load(); got != 1 {
		t.Fatalf("repeat request must hit the cache, got %d reads", got)
	}

	c.PurgeAll()
	get(t, s, path)
	if got := reader.reads.Load(); got != 2 {
		t.Fatalf("purge must force a recompute, got %d reads", got)
	}
}

func TestRegionsEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), nil)
	w := get(t, s, "/api/v1/regions")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var body struct {
		Regions   []models.Region  `json:"regions"`
		Countries map[string][]int `json:"countries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Regions) != 14 {
		t.Fatalf("expected 14 regions, got %d", len(body.Regions))
	}
	if len(body.Countries["Scotland"]) != 2 {
		t.Fatalf("Scotland groups regions 1 and 2, got %v", body.Countries["Scotland"])
	}
}

func TestBoundsEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), nil)
	w := get(t, s, "/api/v1/bounds")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var body struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Available {
		t.Fatal("bounds should be available")
	}

	empty := newTestServer(t, config.Config{}, &stubReader{}, nil)
	w = get(t, empty, "/api/v1/bounds")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Available {
		t.Fatal("an empty store has no bounds")
	}
}

func TestRefreshStatusEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{}, demandReader(), &stubRefresh{})
	w := get(t, s, "/api/v1/refresh/status")
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["completed"] != false {
		t.Fatal("no cycle yet means completed=false")
	}

	stats := &ingest.CycleStats{
		ID:        "cycle-1",
		StartedAt: time.Now().UTC(),
		Families: map[models.Family]*ingest.FamilyStats{
			models.FamilyDemand: {Family: models.FamilyDemand, Outcome: "ok", Inserted: 10},
		},
	}
	s = newTestServer(t, config.Config{}, demandReader(), &stubRefresh{last: stats})
	w = get(t, s, "/api/v1/refresh/status")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["completed"] != true {
		t.Fatal("expected completed=true after a cycle")
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := config.Config{BearerToken: "sekrit"}
	s := newTestServer(t, cfg, demandReader(), nil)

	if w := get(t, s, "/api/v1/regions"); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}
	if w := get(t, s, "/api/v1/regions", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", w.Code)
	}
	if w := get(t, s, "/api/v1/regions", "Authorization", "Bearer sekrit"); w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", w.Code)
	}
}
