// Package metrics exposes Prometheus collectors for the VID lookup service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lookupsTotal               *prometheus.CounterVec
	resolveDurationSeconds     prometheus.Histogram
	browserStartsTotal         prometheus.Counter
	probeHitsTotal             prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vid_lookups_total",
				Help: "Total VID lookups, labeled by outcome (cached, fetched, not_found, transient, invalid).",
			},
			[]string{"outcome"},
		)

		resolveDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vid_resolve_duration_seconds",
				Help:    "Histogram of live catalog resolution latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45},
			},
		)

		browserStartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vid_browser_session_starts_total",
				Help: "Total browser session launches, including restarts after a crash.",
			},
		)

		probeHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vid_probe_hits_total",
				Help: "Total resolutions satisfied by the static HTTP probe without a browser navigation.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLookup increments the lookup counter for one outcome.
func ObserveLookup(outcome string) {
	if lookupsTotal == nil {
		return
	}
	lookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolveDuration records how long one live resolution took.
func ObserveResolveDuration(d time.Duration) {
	if resolveDurationSeconds == nil {
		return
	}
	resolveDurationSeconds.Observe(d.Seconds())
}

// ObserveBrowserStart increments the session-launch counter.
func ObserveBrowserStart() {
	if browserStartsTotal == nil {
		return
	}
	browserStartsTotal.Inc()
}

// ObserveProbeHit increments the probe short-circuit counter.
func ObserveProbeHit() {
	if probeHitsTotal == nil {
		return
	}
	probeHitsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
