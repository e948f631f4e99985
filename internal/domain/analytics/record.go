// Package analytics defines the append-only telemetry record emitted per
// completed query. Records are written to a sink and never read back by
// the router.
package analytics

import "time"

// NodeOutcome captures one node's contribution to a query.
type NodeOutcome struct {
	Node     string        `json:"node"`
	Latency  time.Duration `json:"latency_ns"`
	Attempts int           `json:"attempts"`
	Results  int           `json:"results"`
	Failed   bool          `json:"failed"`
	Error    string        `json:"error,omitempty"`
}

// Record is one completed query.
type Record struct {
	Timestamp    time.Time     `json:"timestamp"`
	Query        string        `json:"query"`
	Nodes        []string      `json:"nodes"`
	CacheHit     bool          `json:"cache_hit"`
	Outcomes     []NodeOutcome `json:"outcomes,omitempty"`
	TotalLatency time.Duration `json:"total_latency_ns"`
	Results      int           `json:"results"`
}
