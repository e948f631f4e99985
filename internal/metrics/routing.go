package metrics

import "github.com/prometheus/client_golang/prometheus"

// Routing Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmesh",
			Name:      "queries_total",
			Help:      "Total number of routed queries",
		},
		[]string{"cache", "outcome"}, // cache: "hit"/"miss"; outcome: "ok"/"degraded"/"failed"
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grantmesh",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"cache"},
	)

	NodeDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmesh",
			Name:      "node_dispatch_total",
			Help:      "Per-node dispatch outcomes",
		},
		[]string{"node", "outcome"}, // outcome: "ok"/"retried"/"dropped"
	)

	NodeDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grantmesh",
			Name:      "node_dispatch_duration_seconds",
			Help:      "Per-node dispatch latency in seconds, including retries",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"node"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmesh",
			Name:      "query_cache_total",
			Help:      "Query cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	GrantsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmesh",
			Name:      "grants_indexed_total",
			Help:      "Grants indexed per node",
		},
		[]string{"node"},
	)
)

var routingMetricsRegistered bool

// RegisterRoutingMetrics registers routing metrics. Must be called once from main.
func RegisterRoutingMetrics() {
	if routingMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(NodeDispatchTotal)
	prometheus.MustRegister(NodeDispatchDuration)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(GrantsIndexedTotal)
	routingMetricsRegistered = true
}
