// Package metrics exposes engine observations as Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NodeLatency implements engine.NodeLatencyObserver backed by a
// per-node histogram plus a visit counter.
type NodeLatency struct {
	visits   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewNodeLatency(reg prometheus.Registerer) *NodeLatency {
	m := &NodeLatency{
		visits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_engine_node_visits_total",
				Help: "Total number of decision node visits",
			},
			[]string{"node_id"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_engine_node_duration_seconds",
				Help:    "Duration of single decision node evaluations",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"node_id"},
		),
	}
	reg.MustRegister(m.visits, m.duration)
	return m
}

func (m *NodeLatency) ObserveNodeLatency(nodeID string, duration time.Duration) {
	m.visits.WithLabelValues(nodeID).Inc()
	m.duration.WithLabelValues(nodeID).Observe(duration.Seconds())
}
