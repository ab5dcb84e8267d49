// Package metrics counts what happened during a sweep and writes it out in the Prometheus text format, for
// collection by a node exporter textfile collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "scalebench_"

// Outcome labels a finished trial.
type Outcome string

const (
	OutcomeOk           Outcome = "ok"
	OutcomeFallback     Outcome = "fallback"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeParseFailure Outcome = "parse_failure"
	OutcomeError        Outcome = "error"
)

// Metrics is the set of collectors of one sweep. It uses its own registry, so two sweeps in one process do not
// share counts.
type Metrics struct {
	registry      *prometheus.Registry
	trials        *prometheus.CounterVec
	trialDuration *prometheus.HistogramVec
	skipped       *prometheus.CounterVec
	speedup       *prometheus.GaugeVec
	fraction      *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "trials_total",
				Help: "Number of trials run, by role and outcome",
			},
			[]string{"role", "outcome"}),
		trialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPrefix + "trial_duration_seconds",
				Help:    "Wall-clock duration of trials as seen by the harness",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
			},
			[]string{"role"}),
		skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "configurations_skipped_total",
				Help: "Number of configurations omitted because no trial produced a usable sample",
			},
			[]string{"group", "role"}),
		speedup: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricPrefix + "speedup",
				Help: "Measured speedup of the parallel median over the serial median",
			},
			[]string{"group", "n", "p"}),
		fraction: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricPrefix + "amdahl_parallel_fraction",
				Help: "Parallel fraction fitted at the largest process count",
			},
			[]string{"group", "n"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordTrial(role string, outcome Outcome, elapsed time.Duration) {
	m.trials.WithLabelValues(role, string(outcome)).Inc()
	if outcome == OutcomeOk || outcome == OutcomeFallback {
		m.trialDuration.WithLabelValues(role).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RecordSkipped(group, role string) {
	m.skipped.WithLabelValues(group, role).Inc()
}

// RecordSpeedup sets the speedup gauge. NaN is recorded as is.
func (m *Metrics) RecordSpeedup(group string, n, p int, speedup float64) {
	m.speedup.WithLabelValues(group, strconv.Itoa(n), strconv.Itoa(p)).Set(speedup)
}

func (m *Metrics) RecordFraction(group string, n int, f float64) {
	m.fraction.WithLabelValues(group, strconv.Itoa(n)).Set(f)
}

// WriteTextfile atomically replaces path with the current values.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
