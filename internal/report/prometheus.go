package report

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// Prometheus exports the measurement stream as Prometheus metrics on its
// own registry.
type Prometheus struct {
	registry *prometheus.Registry

	steps    *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors, labelled with the run name.
func NewPrometheus(runName string) *Prometheus {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"run": runName}

	p := &Prometheus{
		registry: registry,
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "stampede",
			Name:        "step_measurements_total",
			Help:        "Measurements recorded per scenario, step and status.",
			ConstLabels: constLabels,
		}, []string{"scenario", "step", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "stampede",
			Name:        "step_failures_total",
			Help:        "Failed measurements per scenario and step.",
			ConstLabels: constLabels,
		}, []string{"scenario", "step"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "stampede",
			Name:        "step_duration_seconds",
			Help:        "Elapsed time of measured steps.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"scenario", "step"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "stampede",
			Name:        "cycles_total",
			Help:        "Completed cycles per scenario and outcome.",
			ConstLabels: constLabels,
		}, []string{"scenario", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "stampede",
			Name:        "cycle_duration_seconds",
			Help:        "Wall time of complete cycles.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"scenario"}),
	}

	registry.MustRegister(p.steps, p.failures, p.latency, p.cycles, p.duration)
	return p
}

// Registry returns the registry holding the collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Consume implements metrics.Sink.
func (p *Prometheus) Consume(batch metrics.Batch) {
	for _, m := range batch.Measurements {
		p.steps.WithLabelValues(m.Scenario, m.Step, m.Status).Inc()
		p.latency.WithLabelValues(m.Scenario, m.Step).Observe(m.Elapsed.Seconds())
		if m.Failed() {
			p.failures.WithLabelValues(m.Scenario, m.Step).Inc()
		}
	}

	if c := batch.Cycle; c.Scenario != "" {
		outcome := "ok"
		if c.Failed {
			outcome = "failed"
		}
		p.cycles.WithLabelValues(c.Scenario, outcome).Inc()
		p.duration.WithLabelValues(c.Scenario).Observe(c.End.Sub(c.Start).Seconds())
	}
}

// Render implements metrics.Sink. Prometheus is scraped, not pushed.
func (p *Prometheus) Render(*metrics.Snapshot, bool) {}
