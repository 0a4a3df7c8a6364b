// Package metrics exposes Prometheus instruments for the reasoning pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeDegraded    = "degraded"
	OutcomeUnavailable = "store_unavailable"
	OutcomeCancelled   = "cancelled"
	OutcomeError       = "error"
)

// Collector holds the pipeline instruments.
type Collector struct {
	stageLatency  *prometheus.HistogramVec
	analyses      *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	contextErrors prometheus.Counter
}

// NewCollector registers the instruments on reg. A nil reg uses the default
// registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navrag_stage_duration_seconds",
			Help:    "Latency of each reasoning stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"stage"}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "navrag_analyses_total",
			Help: "Analyses by outcome",
		}, []string{"outcome"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "navrag_narrative_fallback_total",
			Help: "Narrative analyses that used the baseline fallback",
		}, []string{"reason"}),
		contextErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "navrag_context_resolver_errors_total",
			Help: "Non-fatal knowledge context resolver failures",
		}),
	}
}

// ObserveStage records the duration of one stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Analysis counts a finished analysis.
func (c *Collector) Analysis(outcome string) {
	if c == nil {
		return
	}
	c.analyses.WithLabelValues(outcome).Inc()
}

// Fallback counts a degraded narrative. reason is "generator_error",
// "empty" or "disabled".
func (c *Collector) Fallback(reason string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(reason).Inc()
}

// ContextError counts a resolver failure.
func (c *Collector) ContextError() {
	if c == nil {
		return
	}
	c.contextErrors.Inc()
}
