package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backendLabel atomic.Value

func init() {
	backendLabel.Store("memory")
}

func SetBackend(s string) {
	if s == "" {
		s = "memory"
	}
	backendLabel.Store(s)
}

func getBackend() string {
	if v := backendLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "memory"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "backend"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "backend"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "backend"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	dedupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_requests_total",
			Help: "Dedup check results by outcome.",
		},
		[]string{"outcome", "backend"},
	)

	regionStoreSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "region_store_size",
			Help: "Number of regions currently cached.",
		},
		[]string{"backend"},
	)

	reaperSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_sweeps_total",
			Help: "Completed reaper sweeps.",
		},
	)

	reaperEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_evicted_total",
			Help: "Regions evicted by the background reaper.",
		},
	)

	invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidations_total",
			Help: "Remote invalidation events by op and result.",
		},
		[]string{"op", "result"},
	)

	storeOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Latency of region store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "backend", "ok"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	b := getBackend()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, b).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, b).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, getBackend()).Observe(durationSeconds)
}

func IncDedup(outcome string) {
	dedupRequests.WithLabelValues(outcome, getBackend()).Inc()
}

func SetStoreSize(n int) {
	regionStoreSize.WithLabelValues(getBackend()).Set(float64(n))
}

func ObserveReaperSweep(evicted int) {
	reaperSweeps.Inc()
	if evicted > 0 {
		reaperEvicted.Add(float64(evicted))
	}
}

func ObserveInvalidation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidations.WithLabelValues(op, result).Inc()
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	ok := "true"
	if err != nil {
		ok = "false"
	}
	storeOpSeconds.WithLabelValues(op, getBackend(), ok).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
