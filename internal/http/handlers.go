package http

import (
	"context"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady probes the backend and every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]any, len(s.checks)+2)

	if err := s.trends.Ping(ctx); err != nil {
		checks["backend"] = "failed: " + err.Error()
		ready = false
	} else {
		checks["backend"] = "ok"
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	limits := s.readLimiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": limits.ClientCount,
		"rejected":       limits.TotalHits + s.writeLimiter.GetMetrics().TotalHits,
	}
	traced := s.tracer.GetMetrics()
	checks["requests"] = map[string]any{
		"total":  traced.TotalRequests,
		"failed": traced.FailedRequests,
	}

	data := map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
	if !ready {
		data["status"] = "not_ready"
		ErrorResponse(http.StatusServiceUnavailable, "dependencies not ready").Data(data).Write(w)
		return
	}
	NewJSONResponse().Data(data).Write(w)
}

// handleTestDB pings the data backend and echoes its non-secret settings.
func (s *Server) handleTestDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := s.trends.Ping(ctx)
	data := map[string]any{
		"config":     s.publicDB,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		data["connected"] = false
		ServiceUnavailableError("database connection failed: " + err.Error()).Data(data).RequestID(r.Context()).Write(w)
		return
	}

	data["connected"] = true
	NewJSONResponse().Message("database connection ok").Data(data).Write(w)
}
