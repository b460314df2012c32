// Package metrics provides Prometheus metrics for marketpulse.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequestsTotal is a counter of upstream provider calls by outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream provider requests by result",
		},
		[]string{"provider", "result"},
	)

	// UpstreamRequestDuration is a histogram of upstream call latencies.
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream provider request latencies",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// CacheLookupsTotal is a counter of fallback cache lookups.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of fallback cache lookups by result (hit, miss, stale, store_stale, backoff, refresh_pending, fail)",
		},
		[]string{"provider", "result"},
	)

	// SnapshotBuildsTotal is a counter of snapshot builds.
	SnapshotBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_builds_total",
			Help: "Total number of snapshot builds by status (ok, degraded)",
		},
		[]string{"symbol", "status"},
	)

	// SnapshotBuildDuration is a histogram of snapshot build latencies.
	SnapshotBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_build_duration_seconds",
			Help:    "Duration of snapshot builds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	// BaseTickDuration is a histogram of broadcast tick durations.
	BaseTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "base_tick_duration_seconds",
			Help:    "Duration of one broadcast base tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SessionsActive is a gauge of currently active subscriber sessions.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of active subscriber sessions",
		},
	)

	// SessionPushesTotal is a counter of messages pushed to sessions.
	SessionPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_pushes_total",
			Help: "Total number of messages pushed to sessions by type",
		},
		[]string{"type"},
	)

	// ControlMessagesTotal is a counter of inbound control messages.
	ControlMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_messages_total",
			Help: "Total number of inbound control messages by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

var initOnce sync.Once

// Init initializes Prometheus metrics registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			UpstreamRequestsTotal,
			UpstreamRequestDuration,
			CacheLookupsTotal,
			SnapshotBuildsTotal,
			SnapshotBuildDuration,
			BaseTickDuration,
			SessionsActive,
			SessionPushesTotal,
			ControlMessagesTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// Handler returns the HTTP handler exposing registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing metrics at path on addr.
func NewServer(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// RecordUpstreamRequest records an upstream provider call.
func RecordUpstreamRequest(provider, result string, duration time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(provider, result).Inc()
	UpstreamRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup records a fallback cache lookup outcome.
func RecordCacheLookup(provider, result string) {
	CacheLookupsTotal.WithLabelValues(provider, result).Inc()
}

// RecordSnapshotBuild records a snapshot build.
func RecordSnapshotBuild(symbol string, degraded bool, duration time.Duration) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	SnapshotBuildsTotal.WithLabelValues(symbol, status).Inc()
	SnapshotBuildDuration.WithLabelValues(symbol).Observe(duration.Seconds())
}

// RecordBaseTick records the duration of one broadcast tick.
func RecordBaseTick(duration time.Duration) {
	BaseTickDuration.Observe(duration.Seconds())
}

// RecordSessionOpened increments the active session gauge.
func RecordSessionOpened() {
	SessionsActive.Inc()
}

// RecordSessionClosed decrements the active session gauge.
func RecordSessionClosed() {
	SessionsActive.Dec()
}

// RecordSessionPush records a message pushed to a session.
func RecordSessionPush(msgType string) {
	SessionPushesTotal.WithLabelValues(msgType).Inc()
}

// RecordControlMessage records the handling result of an inbound control message.
func RecordControlMessage(result string) {
	ControlMessagesTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
