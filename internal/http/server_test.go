package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"trendai/internal/amqp"
	"trendai/internal/config"
	"trendai/internal/core"
	"trendai/internal/metrics"
	"trendai/internal/services"
	"trendai/internal/sources/memory"

	"github.com/prometheus/client_golang/prometheus"
)

func followers(n int64) *int64 { return &n }

func testRecords() []core.Record {
	rec := func(year, month int, color, key string) core.Record {
		return core.Record{
			Year: year, Month: month, FollowerCount: followers(100),
			Color: color, Pattern: "solid", CategoryL1: "top", CategoryL3: "shirt",
			ItemType: "tee", Detail: "pocket", S3Key: key,
		}
	}
	return []core.Record{
		rec(2024, 3, "red", "r1.jpg"), rec(2024, 3, "red", "r2.jpg"), rec(2024, 3, "red", "r3.jpg"), rec(2024, 3, "blue", "b1.jpg"),
		rec(2024, 2, "red", "r0.jpg"), rec(2024, 2, "blue", "b2.jpg"), rec(2024, 2, "blue", "b3.jpg"), rec(2024, 2, "blue", "b4.jpg"),
	}
}

type refreshRecorder struct {
	mu   sync.Mutex
	msgs []*amqp.RefreshMessage
}

func (r *refreshRecorder) handle(_ context.Context, msg *amqp.RefreshMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type testServer struct {
	*Server
	store     *memory.Store
	refreshes *refreshRecorder
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	store := memory.New(testRecords(), []core.MoodKeyword{{Category: "casual", Look: "street", Keyword: "denim"}})
	m := metrics.New(prometheus.NewRegistry())
	rr := &refreshRecorder{}

	trends := services.NewTrendService(store, services.TrendConfig{Metrics: m, Snapshots: store})

	opts := Options{
		Addr:           ":0",
		Trends:         trends,
		Imports:        services.NewImportService(store, store, nil, rr.handle, trends, m),
		Metrics:        m,
		PublicDB:       config.PublicDB{Backend: "memory"},
		AllowedOrigins: []string{"http://dashboard.test"},
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store, refreshes: rr}
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)

	var env Envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, target, rr.Body.String(), err)
		}
	}
	return rr, env
}

// decodeData re-decodes env.Data into v.
func decodeData(t *testing.T, env Envelope, v any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/api/health", "/healthz", "/readyz"} {
		rr, env := srv.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK || !env.Success {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}
}

func TestReadyFailsWhenCheckFails(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.Checks = map[string]ReadyCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rr, env := srv.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable || env.Success {
		t.Fatalf("expected 503, got %d %s", rr.Code, rr.Body.String())
	}
	var data struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decodeData(t, env, &data)
	if data.Status != "not_ready" || !strings.Contains(data.Checks["redis"].(string), "connection refused") {
		t.Fatalf("unexpected readiness payload %+v", data)
	}
}

func TestTestDB(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, env := srv.do(t, http.MethodGet, "/api/test-db", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var data struct {
		Connected bool            `json:"connected"`
		Config    config.PublicDB `json:"config"`
	}
	decodeData(t, env, &data)
	if !data.Connected || data.Config.Backend != "memory" {
		t.Fatalf("unexpected payload %+v", data)
	}
}

func TestItemColorReport(t *testing.T) {
	srv := newTestServer(t, nil)

	rr, env := srv.do(t, http.MethodGet, "/api/item-color?post_year=2024&post_month=3&follower_count=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var report core.TrendReport
	decodeData(t, env, &report)
	if report.TotalFilteredCount != 4 {
		t.Fatalf("total = %d, want 4", report.TotalFilteredCount)
	}
	if len(report.Rising) != 1 || report.Rising[0].Name != "red" || report.Rising[0].ChangePercent != 200 {
		t.Fatalf("unexpected rising %+v", report.Rising)
	}
	if len(report.Falling) != 1 || report.Falling[0].Name != "blue" {
		t.Fatalf("unexpected falling %+v", report.Falling)
	}
}

func TestTrendValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		target string
		status int
	}{
		{"/api/item-color?post_month=13", http.StatusBadRequest},
		{"/api/item-pattern?post_year=abc", http.StatusBadRequest},
		{"/api/item-type-keywords?post_year=2024", http.StatusBadRequest},
		{"/api/item-type-keywords?category_l1=top", http.StatusOK},
		{"/api/item-type-items", http.StatusBadRequest},
		{"/api/item-type-items?category_l3=shirt&post_year=2024&post_month=3", http.StatusOK},
		{"/api/item-detail?max_items=-1", http.StatusBadRequest},
		{"/api/color-images", http.StatusBadRequest},
		{"/api/color-images?value=red&limit=9999", http.StatusBadRequest},
		{"/api/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr, env := srv.do(t, http.MethodGet, tt.target, "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if env.Success != (tt.status == http.StatusOK) {
				t.Fatalf("success flag mismatch: %+v", env)
			}
		})
	}
}

func TestBreakdownEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	rr, env := srv.do(t, http.MethodGet, "/api/item-detail?post_year=2024&post_month=3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var detail core.Breakdown
	decodeData(t, env, &detail)
	if detail.Total != 4 || len(detail.Buckets) != 1 || detail.Buckets[0].Name != "pocket" {
		t.Fatalf("unexpected breakdown %+v", detail)
	}

	rr, env = srv.do(t, http.MethodGet, "/api/mood-rate", "")
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("mood-rate status=%d", rr.Code)
	}

	rr, env = srv.do(t, http.MethodGet, "/api/mood-keywords", "")
	var groups []core.MoodCategoryGroup
	decodeData(t, env, &groups)
	if rr.Code != http.StatusOK || len(groups) != 1 || groups[0].Name != "casual" {
		t.Fatalf("unexpected keywords %+v", groups)
	}
}

func TestItemDetailFoldsOnlyWhenAsked(t *testing.T) {
	srv := newTestServer(t, nil)
	extra := []core.Record{
		{Year: 2024, Month: 3, FollowerCount: followers(100), Detail: "zipper"},
		{Year: 2024, Month: 3, FollowerCount: followers(100), Detail: "hood"},
	}
	if _, err := srv.store.AppendRecords(context.Background(), extra); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		target  string
		buckets int
		other   bool
	}{
		{"/api/item-detail?post_year=2024&post_month=3", 3, false},
		{"/api/item-detail?post_year=2024&post_month=3&max_items=0", 3, false},
		{"/api/item-detail?post_year=2024&post_month=3&max_items=1", 2, true},
		{"/api/item-detail?post_year=2024&post_month=3&threshold=2", 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr, env := srv.do(t, http.MethodGet, tt.target, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d: %s", rr.Code, rr.Body.String())
			}
			var detail core.Breakdown
			decodeData(t, env, &detail)
			if len(detail.Buckets) != tt.buckets {
				t.Fatalf("got %d buckets %+v, want %d", len(detail.Buckets), detail.Buckets, tt.buckets)
			}
			hasOther := false
			for _, b := range detail.Buckets {
				hasOther = hasOther || b.Other
			}
			if hasOther != tt.other {
				t.Fatalf("other bucket present = %v, want %v", hasOther, tt.other)
			}
		})
	}
}

func TestMetaEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	_, env := srv.do(t, http.MethodGet, "/api/item-type-meta", "")
	var meta core.Meta
	decodeData(t, env, &meta)
	if len(meta.Years) != 1 || meta.Years[0] != 2024 || len(meta.Months) != 2 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	_, env = srv.do(t, http.MethodGet, "/api/item-type-meta?with_keywords=1", "")
	var both struct {
		Meta     core.Meta                `json:"meta"`
		Keywords []core.MoodCategoryGroup `json:"keywords"`
	}
	decodeData(t, env, &both)
	if len(both.Meta.Years) != 1 || len(both.Keywords) != 1 {
		t.Fatalf("unexpected combined payload %+v", both)
	}

	_, env = srv.do(t, http.MethodGet, "/api/item-type-categories", "")
	var cats []categoryItem
	decodeData(t, env, &cats)
	if len(cats) != 1 || cats[0].CategoryL1 != "top" {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestImages(t *testing.T) {
	srv := newTestServer(t, nil)

	rr, env := srv.do(t, http.MethodGet, "/api/color-images?value=red&post_year=2024&post_month=3&limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var images []core.ImageRef
	decodeData(t, env, &images)
	if len(images) != 2 {
		t.Fatalf("limit not applied: %+v", images)
	}
	for _, img := range images {
		if img.Value != "red" || img.Year != 2024 || img.Month != 3 {
			t.Fatalf("unexpected image %+v", img)
		}
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rr, _ := srv.do(t, http.MethodGet, "/api/trends/color/snapshot?post_year=2024&post_month=3", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any refresh, got %d", rr.Code)
	}

	p := core.Period{Year: 2024, Month: 3}
	_ = srv.store.SaveSnapshot(context.Background(), core.Snapshot{ID: "snap-1", Dimension: core.DimColor, Period: p})

	rr, env := srv.do(t, http.MethodGet, "/api/trends/color/snapshot?post_year=2024&post_month=3", "")
	var snap core.Snapshot
	decodeData(t, env, &snap)
	if rr.Code != http.StatusOK || snap.ID != "snap-1" {
		t.Fatalf("unexpected snapshot %d %+v", rr.Code, snap)
	}

	if rr, _ := srv.do(t, http.MethodGet, "/api/trends/sleeves/snapshot?post_year=2024&post_month=3", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown dimension should be 400, got %d", rr.Code)
	}
	if rr, _ := srv.do(t, http.MethodGet, "/api/trends/color/snapshot", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing period should be 400, got %d", rr.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rr, env := srv.do(t, http.MethodPost, "/api/trends/refresh", `{"dimension":"pattern","post_year":2024,"post_month":3}`)
	if rr.Code != http.StatusAccepted || !env.Success {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(srv.refreshes.msgs) != 1 {
		t.Fatalf("expected one local refresh, got %d", len(srv.refreshes.msgs))
	}
	msg := srv.refreshes.msgs[0]
	if msg.Dimension != core.DimPattern || msg.Year != 2024 || msg.Month != 3 {
		t.Fatalf("unexpected message %+v", msg)
	}

	rr, _ = srv.do(t, http.MethodPost, "/api/trends/refresh?post_year=2024&post_month=1", "")
	if rr.Code != http.StatusAccepted || srv.refreshes.msgs[1].Dimension != "" {
		t.Fatalf("query-only refresh failed: %d", rr.Code)
	}

	bad := []string{
		`{"dimension":"sleeves"}`,
		`{"post_year":2024,"post_month":13}`,
		`{"unknown":true}`,
		`not json`,
	}
	for _, body := range bad {
		if rr, _ := srv.do(t, http.MethodPost, "/api/trends/refresh", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestRefreshWithoutImports(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.Imports = nil })
	if rr, _ := srv.do(t, http.MethodPost, "/api/trends/refresh", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.WriteLimit = 1 })

	if rr, _ := srv.do(t, http.MethodPost, "/api/trends/refresh", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("first request status=%d", rr.Code)
	}
	rr, env := srv.do(t, http.MethodPost, "/api/trends/refresh", "")
	if rr.Code != http.StatusTooManyRequests || env.Success {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After")
	}

	if rr, _ := srv.do(t, http.MethodGet, "/api/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads use their own budget, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/trends/refresh", nil)
	req.Header.Set("Origin", "http://dashboard.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.test" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodGet, "/api/health", "")

	rr, _ := srv.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `trendai_http_requests_total{method="GET",route="GET /api/health",status="200"} 1`) {
		t.Fatalf("request counter missing:\n%s", rr.Body.String())
	}
}
