// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "github.com/prometheus/client_golang/prometheus"

// Metrics receives engine counters.
//
// Calls happen synchronously on the traversal path, so implementations
// must be cheap and must not call back into the graph.
type Metrics interface {
	// NodeVisited is called once per hop with the kind of the visited node.
	NodeVisited(kind Kind)

	// MessageDropped is called when traversal stops abnormally; reason
	// is the errClass label of the cause.
	MessageDropped(reason string)

	// FlowInserted is called when a routing table gains an entry.
	FlowInserted()

	// FlowErased is called when a routing table loses an entry.
	FlowErased()

	// TraversalDone is called when an entry call returns.
	TraversalDone(hops int)
}

// DefaultMetrics returns a [Metrics] that records nothing.
func DefaultMetrics() Metrics {
	return discardMetrics{}
}

type discardMetrics struct{}

var _ Metrics = discardMetrics{}

func (discardMetrics) NodeVisited(kind Kind)        {}
func (discardMetrics) MessageDropped(reason string) {}
func (discardMetrics) FlowInserted()                {}
func (discardMetrics) FlowErased()                  {}
func (discardMetrics) TraversalDone(hops int)       {}

// PrometheusMetrics implements [Metrics] using Prometheus collectors.
//
// Construct using [NewPrometheusMetrics].
type PrometheusMetrics struct {
	// Visits counts hops by node kind.
	Visits *prometheus.CounterVec

	// Drops counts dropped messages by reason.
	Drops *prometheus.CounterVec

	// Flows tracks the number of routing table entries across all Muxes.
	//
	// A flow routed by more than one Mux counts once per Mux, so this is
	// not a connection count.
	Flows prometheus.Gauge

	// Hops observes the number of hops per traversal.
	Hops prometheus.Histogram
}

var _ Metrics = &PrometheusMetrics{}

// NewPrometheusMetrics creates the collectors and registers them with reg.
//
// This function panics if registration fails (e.g., because of a name clash).
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		Visits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_node_visits_total",
				Help: "Total number of hops by node kind",
			},
			[]string{"kind"},
		),
		Drops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_messages_dropped_total",
				Help: "Total number of dropped messages by reason",
			},
			[]string{"reason"},
		),
		Flows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_flows_active",
				Help: "Number of routing table entries across all Muxes",
			},
		),
		Hops: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_traversal_hops",
				Help:    "Number of hops per traversal",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
	}
	reg.MustRegister(m.Visits, m.Drops, m.Flows, m.Hops)
	return m
}

// NodeVisited implements [Metrics].
func (m *PrometheusMetrics) NodeVisited(kind Kind) {
	m.Visits.WithLabelValues(kind.String()).Inc()
}

// MessageDropped implements [Metrics].
func (m *PrometheusMetrics) MessageDropped(reason string) {
	m.Drops.WithLabelValues(reason).Inc()
}

// FlowInserted implements [Metrics].
func (m *PrometheusMetrics) FlowInserted() {
	m.Flows.Inc()
}

// FlowErased implements [Metrics].
func (m *PrometheusMetrics) FlowErased() {
	m.Flows.Dec()
}

// TraversalDone implements [Metrics].
func (m *PrometheusMetrics) TraversalDone(hops int) {
	m.Hops.Observe(float64(hops))
}
