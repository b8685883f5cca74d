// Package pipeline runs the batch engagement computation: it streams raw
// tracking log lines from a source, classifies and buckets them across a
// worker pool, aggregates per-group counters, and hands the finished rows to
// the configured sinks.
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEventsProcessed = "engage_events_processed_total"
	MetricEventsDiscarded = "engage_events_discarded_total"
	MetricRecordsEmitted  = "engage_records_emitted_total"
	MetricRunDuration     = "engage_run_duration_seconds"
	MetricRunsTotal       = "engage_runs_total"
)

// Status constants for run completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for pipeline runs.
// All operations are thread-safe.
type Metrics struct {
	eventsProcessed prometheus.Counter
	eventsDiscarded prometheus.Counter
	recordsEmitted  prometheus.Counter
	runDuration     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsProcessed,
			Help: "Total number of raw log lines processed by the pipeline",
		}),
		eventsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsDiscarded,
			Help: "Total number of log lines discarded as malformed or out of scope",
		}),
		recordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecordsEmitted,
			Help: "Total number of aggregated engagement records emitted",
		}),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRunDuration,
				Help:    "Histogram of pipeline run duration in seconds by interval type",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0, 3600.0},
			},
			[]string{"interval_type"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of pipeline runs by interval type and status",
			},
			[]string{"interval_type", "status"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.eventsProcessed,
		m.eventsDiscarded,
		m.recordsEmitted,
		m.runDuration,
		m.runsTotal,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AddEventsProcessed adds to the processed lines counter.
func (m *Metrics) AddEventsProcessed(n float64) {
	m.eventsProcessed.Add(n)
}

// AddEventsDiscarded adds to the discarded lines counter.
func (m *Metrics) AddEventsDiscarded(n float64) {
	m.eventsDiscarded.Add(n)
}

// AddRecordsEmitted adds to the emitted records counter.
func (m *Metrics) AddRecordsEmitted(n float64) {
	m.recordsEmitted.Add(n)
}

// ObserveRunDuration records a run duration sample.
func (m *Metrics) ObserveRunDuration(intervalType string, seconds float64) {
	m.runDuration.WithLabelValues(intervalType).Observe(seconds)
}

// IncRunsTotal increments the runs counter.
func (m *Metrics) IncRunsTotal(intervalType, status string) {
	m.runsTotal.WithLabelValues(intervalType, status).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsProcessed,
		m.eventsDiscarded,
		m.recordsEmitted,
		m.runDuration,
		m.runsTotal,
	}
}
