package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the runner.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	ActiveRuns       prometheus.Gauge
	StoredResults    prometheus.Gauge
	PrunedResults    prometheus.Counter
	RateLimited      prometheus.Counter
	InjectionSignals *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	CodeSizeBytes    prometheus.Histogram
	OutputSizeBytes  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "runs_total",
				Help:      "Total number of runs by language and final status.",
			},
			[]string{"language", "status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a run including the retry, in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 61},
			},
			[]string{"language"},
		),

		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Duration of single provider calls.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"provider", "status"},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Subsystem: "provider",
				Name:      "errors_total",
				Help:      "Provider call failures by failure kind.",
			},
			[]string{"kind"},
		),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "retries_total",
				Help:      "Retried runs by the failure kind that triggered the retry.",
			},
			[]string{"kind"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Name:      "active_runs",
				Help:      "Number of provider calls currently in progress.",
			},
		),

		StoredResults: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Subsystem: "store",
				Name:      "results",
				Help:      "Number of results held in memory.",
			},
		),

		PrunedResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "runner",
				Subsystem: "store",
				Name:      "pruned_total",
				Help:      "Results discarded by pruning.",
			},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "runner",
				Subsystem: "api",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			},
		),

		InjectionSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "prompt_injection_signals_total",
				Help:      "Submitted code or model output matching a prompt injection pattern.",
			},
			[]string{"pattern"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "output_size_bytes",
				Help:      "Size of returned stdout plus stderr in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ProviderLatency,
		m.ProviderErrors,
		m.Retries,
		m.ActiveRuns,
		m.StoredResults,
		m.PrunedResults,
		m.RateLimited,
		m.InjectionSignals,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordRun records metrics for a completed run.
func (m *Metrics) RecordRun(language, status string, durationSec float64) {
	m.RunsTotal.WithLabelValues(language, status).Inc()
	m.RunDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordProviderCall records one provider round trip.
func (m *Metrics) RecordProviderCall(provider, status string, durationSec float64) {
	m.ProviderLatency.WithLabelValues(provider, status).Observe(durationSec)
}

// RecordProviderError records a failed provider call by failure kind.
func (m *Metrics) RecordProviderError(kind string) {
	m.ProviderErrors.WithLabelValues(kind).Inc()
}

// RecordRetry records that a run was attempted a second time.
func (m *Metrics) RecordRetry(kind string) {
	m.Retries.WithLabelValues(kind).Inc()
}

// RecordInjectionSignal records a prompt injection pattern match.
func (m *Metrics) RecordInjectionSignal(pattern string) {
	m.InjectionSignals.WithLabelValues(pattern).Inc()
}
