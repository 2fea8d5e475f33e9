// Package metrics provides Prometheus metrics for the arbitrage engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes engine metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LegResolutions *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	BatchPairs     *prometheus.GaugeVec
	BatchRuns      *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LegResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyarb_leg_resolutions_total",
				Help: "Leg resolutions by price source and status",
			},
			[]string{"source", "status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyarb_price_cache_lookups_total",
				Help: "Live price cache lookups by backend and result",
			},
			[]string{"backend", "result"},
		),
		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyarb_upstream_errors_total",
				Help: "Failed exchange calls by endpoint",
			},
			[]string{"endpoint"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polyarb_batch_duration_seconds",
				Help:    "Wall time of one evaluation pass",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		BatchPairs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polyarb_batch_pairs",
				Help: "Strategy/source pairs in the last pass by state",
			},
			[]string{"state"},
		),
		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyarb_batch_runs_total",
				Help: "Evaluation passes by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.LegResolutions,
		m.CacheLookups,
		m.UpstreamErrors,
		m.BatchDuration,
		m.BatchPairs,
		m.BatchRuns,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordLeg counts one leg resolution.
func (m *Metrics) RecordLeg(source, status string) {
	if m == nil {
		return
	}
	m.LegResolutions.WithLabelValues(source, status).Inc()
}

// RecordCache counts one price cache lookup. result is hit, miss or error.
func (m *Metrics) RecordCache(backend, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(backend, result).Inc()
}

// RecordUpstreamError counts a failed exchange call.
func (m *Metrics) RecordUpstreamError(endpoint string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(endpoint).Inc()
}

// RecordBatch records a finished pass.
func (m *Metrics) RecordBatch(elapsed time.Duration, total, incomplete int) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(elapsed.Seconds())
	m.BatchPairs.WithLabelValues("complete").Set(float64(total - incomplete))
	m.BatchPairs.WithLabelValues("incomplete").Set(float64(incomplete))
	m.BatchRuns.WithLabelValues("ok").Inc()
}

// RecordBatchFailure counts a pass that could not produce a report.
func (m *Metrics) RecordBatchFailure() {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues("failed").Inc()
}
