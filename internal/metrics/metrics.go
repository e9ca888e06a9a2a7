// Package metrics exposes Prometheus instrumentation for the API and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	reports        *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
	recordsScanned *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	refreshDuration *prometheus.HistogramVec
	refreshSuccess  *prometheus.CounterVec
	refreshFailure  *prometheus.CounterVec

	published *prometheus.CounterVec
}

// New registers all collectors on reg. Passing prometheus.NewRegistry() keeps
// tests isolated from the global registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendai_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_trend_reports_total",
			Help: "Trend reports computed per dimension.",
		}, []string{"dimension"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendai_trend_report_duration_seconds",
			Help:    "Time spent loading records and aggregating a report.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dimension"}),
		recordsScanned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendai_trend_records_scanned",
			Help:    "Records scanned per aggregation.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"dimension"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_cache_lookups_total",
			Help: "Cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendai_snapshot_refresh_duration_seconds",
			Help:    "Duration of snapshot refresh jobs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dimension"}),
		refreshSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_snapshot_refresh_success_total",
			Help: "Successful snapshot refreshes.",
		}, []string{"dimension"}),
		refreshFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_snapshot_refresh_failure_total",
			Help: "Failed snapshot refreshes.",
		}, []string{"dimension"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendai_refresh_messages_published_total",
			Help: "Refresh messages published by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.reports, m.reportDuration, m.recordsScanned,
		m.cacheLookups,
		m.refreshDuration, m.refreshSuccess, m.refreshFailure,
		m.published,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) ObserveReport(dimension string, records int, d time.Duration) {
	if m == nil {
		return
	}
	dimension = normalizeLabel(dimension)
	m.reports.WithLabelValues(dimension).Inc()
	m.reportDuration.WithLabelValues(dimension).Observe(d.Seconds())
	m.recordsScanned.WithLabelValues(dimension).Observe(float64(records))
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(normalizeLabel(cache), "hit").Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(normalizeLabel(cache), "miss").Inc()
}

// ObserveRefresh records one snapshot refresh and its outcome.
func (m *Metrics) ObserveRefresh(dimension string, d time.Duration, err error) {
	if m == nil {
		return
	}
	dimension = normalizeLabel(dimension)
	m.refreshDuration.WithLabelValues(dimension).Observe(d.Seconds())
	if err != nil {
		m.refreshFailure.WithLabelValues(dimension).Inc()
		return
	}
	m.refreshSuccess.WithLabelValues(dimension).Inc()
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
