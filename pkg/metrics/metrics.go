// Package metrics exposes Prometheus instrumentation for the scoring
// engine. The collector is optional everywhere it is accepted.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry        *prometheus.Registry
	documentsScored prometheus.Counter
	rulesEvaluated  prometheus.Counter
	rulesTriggered  prometheus.Counter
	scoreHistogram  prometheus.Histogram
	versionsCreated prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		documentsScored: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scoring_documents_total",
			Help: "Documents evaluated against the rule set",
		}),
		rulesEvaluated: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scoring_rules_evaluated_total",
			Help: "Rule evaluations performed",
		}),
		rulesTriggered: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scoring_rules_triggered_total",
			Help: "Rule evaluations that produced a deduction",
		}),
		scoreHistogram: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "scoring_final_score",
			Help:    "Distribution of final document scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		versionsCreated: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scoring_rule_versions_created_total",
			Help: "Rule-set snapshots minted by the versioning engine",
		}),
	}
}

func (c *Collector) RecordScoring(rulesEvaluated int, rulesTriggered int, finalScore int) {
	c.documentsScored.Inc()
	c.rulesEvaluated.Add(float64(rulesEvaluated))
	c.rulesTriggered.Add(float64(rulesTriggered))
	c.scoreHistogram.Observe(float64(finalScore))
}

func (c *Collector) RecordVersionCreated() {
	c.versionsCreated.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
