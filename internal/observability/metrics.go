// Package observability wires Prometheus instrumentation for the detection
// pipeline. A nil *Metrics is valid and records nothing, so library code can
// instrument unconditionally.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	Predictions   *prometheus.CounterVec
	RuleHits      *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	FailOpen      prometheus.Counter
	LoopRestarts  *prometheus.CounterVec
	CacheHits     prometheus.CounterFunc
	CacheMisses   prometheus.CounterFunc

	registry *prometheus.Registry
}

// New creates and registers the collectors on a fresh registry. cacheHits
// and cacheMisses are read lazily at scrape time so the engine keeps plain
// atomic counters.
func New(cacheHits, cacheMisses func() float64) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "predictions_total",
			Help:      "Classified records by outcome and attack type.",
		}, []string{"outcome", "attack_type"}),
		RuleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "rule_hits_total",
			Help:      "Override rule firings by rule name.",
		}, []string{"rule"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logsieve",
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent classifying one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		FailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "fail_open_total",
			Help:      "Batches answered all-benign because scoring was unavailable.",
		}),
		LoopRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "loop_restarts_total",
			Help:      "Background loop restarts after a panic or early exit.",
		}, []string{"loop"}),
		CacheHits: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "decision_cache_hits_total",
			Help:      "Rule decision cache hits.",
		}, cacheHits),
		CacheMisses: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "logsieve",
			Name:      "decision_cache_misses_total",
			Help:      "Rule decision cache misses.",
		}, cacheMisses),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Predictions, m.RuleHits, m.BatchDuration, m.FailOpen,
		m.LoopRestarts, m.CacheHits, m.CacheMisses,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObservePrediction records one verdict.
func (m *Metrics) ObservePrediction(isAttack bool, attackType string) {
	if m == nil {
		return
	}
	outcome := "benign"
	if isAttack {
		outcome = "attack"
	} else {
		attackType = ""
	}
	m.Predictions.WithLabelValues(outcome, attackType).Inc()
}

// ObserveRuleHit records one override rule firing.
func (m *Metrics) ObserveRuleHit(rule string) {
	if m == nil {
		return
	}
	m.RuleHits.WithLabelValues(rule).Inc()
}

// ObserveBatch records the duration of one classify call.
func (m *Metrics) ObserveBatch(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}

// ObserveFailOpen records an all-benign fallback.
func (m *Metrics) ObserveFailOpen() {
	if m == nil {
		return
	}
	m.FailOpen.Inc()
}

// ObserveLoopRestart records one supervised background loop restart.
func (m *Metrics) ObserveLoopRestart(loop string) {
	if m == nil {
		return
	}
	m.LoopRestarts.WithLabelValues(loop).Inc()
}
