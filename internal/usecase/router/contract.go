package router

import (
	"context"
	"time"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/analytics"
	"github.com/grantmesh/grantmesh/internal/domain/candidate"
	"github.com/grantmesh/grantmesh/internal/domain/envelope"
	"github.com/grantmesh/grantmesh/internal/domain/node"
)

// Node is a dispatch target: anything that holds a registration record and
// answers envelopes.
type Node interface {
	Registration() node.Registration
	Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error)
}

// Cache stores merged query results keyed by fingerprint.
type Cache interface {
	Get(fingerprint string) (candidates []candidate.Candidate, nodes []string, ok bool)
	Put(fingerprint string, candidates []candidate.Candidate, nodes []string, ttl time.Duration)
}

// Advisor contributes optional advisory text for a query. Failures never
// block routing.
type Advisor interface {
	Advise(ctx context.Context, queryText string) (string, error)
}

// AnalyticsSink receives one record per completed query.
type AnalyticsSink interface {
	Append(ctx context.Context, rec analytics.Record) error
}

// EmbedderSource resolves the shared embedder for a model id.
type EmbedderSource interface {
	GetOrLoad(ctx context.Context, modelID string) (domain.Embedder, error)
}
