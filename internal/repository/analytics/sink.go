// Package analytics persists query telemetry records. The sink is
// append-only: the router writes, nothing in the router ever reads back.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/grantmesh/grantmesh/internal/db"
	"github.com/grantmesh/grantmesh/internal/domain/analytics"
)

// DefaultStream is the Redis stream holding query records.
const DefaultStream = "grantmesh:analytics:queries"

// StreamSink appends records to a Redis stream.
type StreamSink struct {
	stream   string
	appender db.StreamAppender
}

// NewStreamSink creates a Redis-stream-backed sink.
func NewStreamSink(appender db.StreamAppender) *StreamSink {
	return &StreamSink{stream: DefaultStream, appender: appender}
}

// WithStream overrides the stream key.
func (s *StreamSink) WithStream(stream string) *StreamSink {
	if stream != "" {
		s.stream = stream
	}
	return s
}

// Append writes one record. Outcomes are serialized as a JSON field so the
// stream entry stays flat.
func (s *StreamSink) Append(ctx context.Context, rec analytics.Record) error {
	outcomes, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	nodes, err := json.Marshal(rec.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}

	fields := map[string]string{
		"timestamp":        rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"query":            rec.Query,
		"nodes":            string(nodes),
		"cache_hit":        strconv.FormatBool(rec.CacheHit),
		"outcomes":         string(outcomes),
		"total_latency_ms": strconv.FormatInt(rec.TotalLatency.Milliseconds(), 10),
		"results":          strconv.Itoa(rec.Results),
	}

	if err := s.appender.XAdd(ctx, s.stream, fields); err != nil {
		return fmt.Errorf("append analytics record: %w", err)
	}
	return nil
}

// MemorySink buffers records in memory. Used when no database is
// configured, and by tests.
type MemorySink struct {
	mu      sync.Mutex
	records []analytics.Record
}

// NewMemorySink creates an in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Append stores the record.
func (s *MemorySink) Append(_ context.Context, rec analytics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (s *MemorySink) Records() []analytics.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analytics.Record(nil), s.records...)
}
