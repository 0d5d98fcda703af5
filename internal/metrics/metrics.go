// Package metrics exposes deployment and connection-check counters in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder owns the collectors for one registry.
type Recorder struct {
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	checks   *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors on reg. A nil reg
// gets a fresh registry, which keeps tests isolated from each other.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdeploy_deploy_attempts_total",
				Help: "Deployment attempts by result and final state",
			},
			[]string{"result", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentdeploy_deploy_duration_seconds",
				Help:    "Wall-clock duration of deployment attempts",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdeploy_connection_checks_total",
				Help: "Connection checks by outcome bucket",
			},
			[]string{"bucket"},
		),
	}
	reg.MustRegister(r.attempts, r.duration, r.checks)
	return r
}

// DeployFinished records one finished deployment attempt.
func (r *Recorder) DeployFinished(success bool, state string, d time.Duration) {
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	r.attempts.WithLabelValues(result, state).Inc()
	r.duration.WithLabelValues(result).Observe(d.Seconds())
}

// ConnectionChecked records one connection check.
func (r *Recorder) ConnectionChecked(bucket string) {
	r.checks.WithLabelValues(bucket).Inc()
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
