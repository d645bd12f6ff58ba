package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FetchOutcome captures the result of an upstream API call.
type FetchOutcome string

const (
	// FetchSuccess indicates the upstream call returned usable data.
	FetchSuccess FetchOutcome = "success"
	// FetchFailure indicates the upstream call failed or timed out.
	FetchFailure FetchOutcome = "failure"
)

// CacheOperation identifies the snapshot cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records snapshot cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records snapshot cache store attempts.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup served a fresh cached snapshot.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupStale indicates an expired snapshot was served under the
	// stale-while-degraded policy.
	CacheLookupStale CacheLookupOutcome = "stale"
	// CacheLookupMiss indicates no servable snapshot was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the snapshot entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// Recorder publishes Prometheus metrics for pipeline activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	fetchRequests *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	forecastCycles   *prometheus.CounterVec
	forecastDuration prometheus.Histogram
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	fetchRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restock",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Upstream marketplace API calls issued by the agent.",
	}, []string{"endpoint", "outcome"})

	fetchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "restock",
		Subsystem: "fetch",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for upstream marketplace API calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restock",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Snapshot cache operations executed by the pipeline.",
	}, []string{"endpoint", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "restock",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for snapshot cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"endpoint", "operation", "result"})

	forecastCycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restock",
		Subsystem: "forecast",
		Name:      "cycles_total",
		Help:      "Completed forecast pipeline cycles.",
	}, []string{"outcome"})

	forecastDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "restock",
		Subsystem: "forecast",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of forecast pipeline cycles.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	reg.MustRegister(fetchRequests, fetchLatency, cacheOperations, cacheLatency, forecastCycles, forecastDuration)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		fetchRequests:    fetchRequests,
		fetchLatency:     fetchLatency,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
		forecastCycles:   forecastCycles,
		forecastDuration: forecastDuration,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveFetch records the outcome and latency of an upstream API call.
func (r *Recorder) ObserveFetch(endpoint string, outcome FetchOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	outcomeLabel := string(outcome)
	if outcomeLabel == "" {
		outcomeLabel = string(FetchFailure)
	}
	r.fetchRequests.WithLabelValues(endpointLabel, outcomeLabel).Inc()
	r.fetchLatency.WithLabelValues(endpointLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a snapshot cache lookup.
func (r *Recorder) ObserveCacheLookup(endpoint string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(endpointLabel, CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a snapshot cache store attempt.
func (r *Recorder) ObserveCacheStore(endpoint string, result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.observeCache(endpointLabel, CacheOperationStore, resultLabel, duration)
}

// ObserveForecastCycle records a completed pipeline cycle.
func (r *Recorder) ObserveForecastCycle(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.forecastCycles.WithLabelValues(normalizeLabel(outcome)).Inc()
	r.forecastDuration.Observe(duration.Seconds())
}

func (r *Recorder) observeCache(endpoint string, operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(endpoint, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(endpoint, opLabel, resLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
