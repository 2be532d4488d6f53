// Package metrics exports statement counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/critique/db"
)

// QueryCollector implements db.MetricsCollector. Statements are labelled by
// db.Verb and db.Kind, both closed sets, so label cardinality stays bounded.
type QueryCollector struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewQueryCollector creates the collector and registers it with reg.
// A nil reg leaves it unregistered.
func NewQueryCollector(reg prometheus.Registerer) *QueryCollector {
	c := &QueryCollector{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "critique",
				Subsystem: "db",
				Name:      "statements_total",
				Help:      "Statements executed, by verb and outcome.",
			},
			[]string{"verb", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "critique",
				Subsystem: "db",
				Name:      "statement_duration_seconds",
				Help:      "Statement latency, by verb.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"verb"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.total, c.duration)
	}
	return c
}

// RecordStatement counts one statement under its verb and outcome, where
// outcome is "ok" or the error kind from db.Kind.
func (c *QueryCollector) RecordStatement(verb, outcome string, d time.Duration) {
	c.total.WithLabelValues(verb, outcome).Inc()
	c.duration.WithLabelValues(verb).Observe(d.Seconds())
}

// Hook returns a db.Hook feeding this collector.
func (c *QueryCollector) Hook() db.Hook { return db.NewMetricsHook(c) }

var _ db.MetricsCollector = (*QueryCollector)(nil)
