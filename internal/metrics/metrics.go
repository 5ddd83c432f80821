// Package metrics exposes the daemon's Prometheus instrumentation:
// counters and histograms fed by the gateway and pipeline, plus a
// const-metric collector that reads queue depth straight from the
// store at scrape time.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docforge"

// Metrics owns the registry and every instrument the daemon updates.
type Metrics struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	finished      *prometheus.CounterVec
	retries       prometheus.Counter
	stageDuration *prometheus.HistogramVec
	providerErrs  *prometheus.CounterVec
	droppedEvents prometheus.Counter
	activeWorkers prometheus.Gauge
}

// New builds a registry with the standard Go and process collectors
// plus the pipeline instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Job submissions received by the gateway.",
		}, []string{"tier", "outcome"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Stage failures rescheduled for another attempt.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stage executions.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "outcome"}),
		providerErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Enhancement provider failures by error code.",
		}, []string{"code"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_dropped_total",
			Help:      "Progress events dropped because a subscriber buffer was full.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Workers currently executing a job.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.finished,
		m.retries,
		m.stageDuration,
		m.providerErrs,
		m.droppedEvents,
		m.activeWorkers,
	)
	return m
}

// Register adds an extra collector, such as the queue depth exporter.
func (m *Metrics) Register(c prometheus.Collector) {
	m.registry.MustRegister(c)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSubmission(tier, outcome string) {
	m.submissions.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) ObserveFinished(status string) {
	m.finished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveRetry() {
	m.retries.Inc()
}

func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveProviderError(code string) {
	m.providerErrs.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveDroppedEvents(count int) {
	m.droppedEvents.Add(float64(count))
}

func (m *Metrics) WorkerStarted() { m.activeWorkers.Inc() }
func (m *Metrics) WorkerStopped() { m.activeWorkers.Dec() }
