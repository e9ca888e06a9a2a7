package trace

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trendai/internal/log"
)

func newTestMiddleware() *Middleware {
	return NewMiddleware(nil, log.New(log.Config{Output: io.Discard}))
}

func TestMiddlewareRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"no header", "", false},
		{"valid header", "req_0123456789abcdef", true},
		{"uuid", "3f2b8c1e-9d4a-4c1b-8f2e-1a2b3c4d5e6f", true},
		{"too short", "abc", false},
		{"header injection", "abc def\r\nX-Evil: 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := newTestMiddleware().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if got != seen {
				t.Fatalf("response id %q differs from context id %q", got, seen)
			}
			if tt.reuse && got != tt.incoming {
				t.Errorf("expected incoming id %q to be reused, got %q", tt.incoming, got)
			}
			if !tt.reuse && !strings.HasPrefix(got, "req_") {
				t.Errorf("expected generated id, got %q", got)
			}
		})
	}
}

func TestMiddlewareMetrics(t *testing.T) {
	m := newTestMiddleware()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/ok", "/fail", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := m.GetMetrics()
	if got.TotalRequests != 3 || got.FailedRequests != 1 {
		t.Fatalf("unexpected metrics %+v", got)
	}
	if got.AverageResponseTime < 0 {
		t.Fatalf("negative average %d", got.AverageResponseTime)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := RequestIDFromRequest(req); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
