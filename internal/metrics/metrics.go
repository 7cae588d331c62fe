package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "volumetracker"

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	PollCycles       *prometheus.CounterVec // by outcome
	FetchErrors      *prometheus.CounterVec // by kind
	AuthAttempts     *prometheus.CounterVec // by result
	TrackedSymbols   prometheus.Gauge
	SnapshotsWritten *prometheus.CounterVec // by mode
	QueryResults     *prometheus.CounterVec // by source
	SinkErrors       *prometheus.CounterVec // by sink
	FetchDuration    prometheus.Histogram
}

// New builds the collectors on a private registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "poll_cycles_total",
			Help:      "Scheduler iterations by outcome",
		}, []string{"outcome"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "fetch_errors_total",
			Help:      "Failed quote fetches by error kind",
		}, []string{"kind"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auth_attempts_total",
			Help:      "Access token exchanges by result",
		}, []string{"result"}),
		TrackedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "tracked_symbols",
			Help:      "Number of symbols in the active set",
		}),
		SnapshotsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshots_written_total",
			Help:      "Snapshots written to the cache by mode",
		}, []string{"mode"}),
		QueryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "results_total",
			Help:      "Answered reads by source",
		}, []string{"source"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Failed snapshot publishes by sink",
		}, []string{"sink"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "fetch_duration_seconds",
			Help:      "Quote fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.PollCycles,
		m.FetchErrors,
		m.AuthAttempts,
		m.TrackedSymbols,
		m.SnapshotsWritten,
		m.QueryResults,
		m.SinkErrors,
		m.FetchDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Cycle(outcome string) {
	if m != nil {
		m.PollCycles.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) FetchError(kind string) {
	if m != nil {
		m.FetchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Auth(result string) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Tracked(n int) {
	if m != nil {
		m.TrackedSymbols.Set(float64(n))
	}
}

func (m *Metrics) Written(mode string, n int) {
	if m != nil && n > 0 {
		m.SnapshotsWritten.WithLabelValues(mode).Add(float64(n))
	}
}

func (m *Metrics) Query(source string) {
	if m != nil {
		m.QueryResults.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) ObserveFetch(seconds float64) {
	if m != nil {
		m.FetchDuration.Observe(seconds)
	}
}
