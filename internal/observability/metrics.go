package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Completed runs. Watch for: rate() dropping below the poll cadence.
	RunsTotal prometheus.Counter

	// Run wall time. Watch for: runs approaching the poll interval.
	RunDurationSeconds prometheus.Histogram

	// Station snapshot requests by outcome. Watch for: error vs success ratio.
	StationFetchesTotal *prometheus.CounterVec

	// Snapshot request latency. Watch for: p95 > 2s (provider degradation).
	StationFetchDurationSeconds *prometheus.HistogramVec

	// Token exchanges by outcome. More than one per token lifetime means the
	// cache is not amortizing.
	TokenAcquisitionsTotal *prometheus.CounterVec

	// Per-station retry attempts within runs. High retries = unstable provider.
	StationRetriesTotal prometheus.Counter

	// State writes emitted by runs (measurements and last-seen markers).
	StateWritesTotal prometheus.Counter

	// Aggregate connectivity from the last run: 1 if any station succeeded.
	ConnectedGauge prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	RunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runsTotal",
			Help: "Total number of completed acquisition runs",
		},
	)
	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runDurationSeconds",
			Help:    "Acquisition run duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	StationFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationFetchesTotal",
			Help: "Total number of station snapshot requests",
		},
		[]string{"status"},
	)
	StationFetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stationFetchDurationSeconds",
			Help:    "Station snapshot request latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	TokenAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenAcquisitionsTotal",
			Help: "Total number of access token exchanges",
		},
		[]string{"status"},
	)
	StationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stationRetriesTotal",
			Help: "Total number of per-station retry attempts within runs",
		},
	)
	StateWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stateWritesTotal",
			Help: "Total number of state writes emitted (measurements and last-seen markers)",
		},
	)
	ConnectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected",
			Help: "Aggregate connectivity from the last run (1 = at least one station succeeded)",
		},
	)

	registry.MustRegister(
		RunsTotal, RunDurationSeconds,
		StationFetchesTotal, StationFetchDurationSeconds,
		TokenAcquisitionsTotal, StationRetriesTotal,
		StateWritesTotal, ConnectedGauge,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
