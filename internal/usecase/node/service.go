// Package node implements a single search node: an embedder-backed vector
// index over one slice of the grant corpus, addressed through envelopes.
package node

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/candidate"
	"github.com/grantmesh/grantmesh/internal/domain/envelope"
	"github.com/grantmesh/grantmesh/internal/domain/grant"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
	"github.com/grantmesh/grantmesh/internal/domain/query"
	"github.com/grantmesh/grantmesh/internal/metrics"
	"github.com/grantmesh/grantmesh/internal/repository/vecindex"
)

// OverFetchFactor widens index retrieval beyond the requested limit so
// lexical re-ranking has headroom to promote items.
const OverFetchFactor = 3

// DefaultBatchSize is the ingest chunk size: one embedding call and one
// index write per chunk.
const DefaultBatchSize = 32

// Service is one search node.
type Service struct {
	reg       domnode.Registration
	index     Index
	embedders EmbedderSource
	modelID   string
	batchSize int
	queries   atomic.Uint64
	logger    *zap.Logger
}

// New creates a search node over its own index.
func New(reg domnode.Registration, index Index, embedders EmbedderSource, modelID string, logger *zap.Logger) *Service {
	return &Service{
		reg:       reg,
		index:     index,
		embedders: embedders,
		modelID:   modelID,
		batchSize: DefaultBatchSize,
		logger:    logger.With(zap.String("node", reg.ID())),
	}
}

// WithBatchSize overrides the ingest chunk size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Registration returns the node's static registration record.
func (s *Service) Registration() domnode.Registration { return s.reg }

// Status returns a point-in-time view of the node.
func (s *Service) Status() domnode.Status {
	return domnode.Status{
		Registration: s.reg,
		Indexed:      s.index.Count(),
		Queries:      s.queries.Load(),
	}
}

// Search embeds the query and ranks the node's items by blended
// semantic and lexical relevance. An empty query returns no candidates.
func (s *Service) Search(ctx context.Context, q query.Query) ([]candidate.Candidate, error) {
	if q.IsEmpty() {
		return nil, nil
	}
	if q.Limit() <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", domain.ErrInvalidArgument)
	}

	emb, err := s.embedders.GetOrLoad(ctx, s.modelID)
	if err != nil {
		return nil, err
	}
	res, err := emb.Embed(ctx, q.Normalized())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	return s.SearchWithVector(ctx, q, res.Embedding)
}

// SearchWithVector ranks against a pre-computed query vector, skipping the
// embed step. Used when an envelope already carries the embedding.
func (s *Service) SearchWithVector(_ context.Context, q query.Query, vector []float32) ([]candidate.Candidate, error) {
	if q.IsEmpty() {
		return nil, nil
	}
	if q.Limit() <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", domain.ErrInvalidArgument)
	}

	s.queries.Add(1)

	hits := s.index.Search(vector, q.Limit()*OverFetchFactor, q.Filters())
	tokens := q.Tokens()

	candidates := make([]candidate.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, candidate.New(
			h.ID, s.reg.ID(), h.Text, h.Metadata, h.Score, Lexical(tokens, h.Text),
		))
	}

	// Over-fetch retrieved by semantic order; re-rank on the blended score.
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].RelevanceScore(), candidates[j].RelevanceScore()
		if ri != rj {
			return ri > rj
		}
		return candidates[i].LexicalScore() > candidates[j].LexicalScore()
	})

	if len(candidates) > q.Limit() {
		candidates = candidates[:q.Limit()]
	}
	return candidates, nil
}

// Index embeds and stores one grant. Re-ingesting an id overwrites in place.
func (s *Service) Index(ctx context.Context, g grant.Grant) error {
	emb, err := s.embedders.GetOrLoad(ctx, s.modelID)
	if err != nil {
		return err
	}
	res, err := emb.Embed(ctx, g.SearchText())
	if err != nil {
		return fmt.Errorf("vectorize grant %q: %w", g.ID(), err)
	}

	s.index.Upsert(vecindex.Item{
		ID:       g.ID(),
		Vector:   res.Embedding,
		Text:     g.SearchText(),
		Metadata: g.Metadata(),
	})
	metrics.GrantsIndexedTotal.WithLabelValues(s.reg.ID()).Inc()
	return nil
}

// IndexBatch ingests grants in chunks: one embedding call and one index
// write per chunk. Returns the number of grants indexed; a chunk failure
// stops the batch but keeps everything indexed so far.
func (s *Service) IndexBatch(ctx context.Context, grants []grant.Grant) (int, error) {
	if len(grants) == 0 {
		return 0, nil
	}

	emb, err := s.embedders.GetOrLoad(ctx, s.modelID)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for start := 0; start < len(grants); start += s.batchSize {
		end := start + s.batchSize
		if end > len(grants) {
			end = len(grants)
		}
		chunk := grants[start:end]

		texts := make([]string, len(chunk))
		for i := range chunk {
			texts[i] = chunk[i].SearchText()
		}

		var res domain.BatchEmbeddingResult
		if be, ok := emb.(domain.BatchEmbedder); ok {
			res, err = be.BatchEmbed(ctx, texts)
		} else {
			res, err = domain.BatchFallback(ctx, emb, texts)
		}
		if err != nil {
			return indexed, fmt.Errorf("vectorize batch [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != len(chunk) {
			return indexed, fmt.Errorf(
				"batch returned %d vectors for %d grants: %w",
				len(res.Embeddings), len(chunk), domain.ErrEmbeddingProviderError,
			)
		}

		items := make([]vecindex.Item, len(chunk))
		for i := range chunk {
			items[i] = vecindex.Item{
				ID:       chunk[i].ID(),
				Vector:   res.Embeddings[i],
				Text:     texts[i],
				Metadata: chunk[i].Metadata(),
			}
		}
		s.index.UpsertBatch(items)
		indexed += len(chunk)
		metrics.GrantsIndexedTotal.WithLabelValues(s.reg.ID()).Add(float64(len(chunk)))
	}

	s.logger.Info("Indexed grants", zap.Int("count", indexed))
	return indexed, nil
}

// Handle dispatches an envelope to the matching operation. Failures come
// back as error envelopes carrying the request's correlation id; the error
// return mirrors the envelope so callers can branch without parsing payloads.
func (s *Service) Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	if err := env.Validate(); err != nil {
		return env.Fail(err), err
	}

	switch env.MessageIntent() {
	case envelope.IntentSearch:
		return s.handleSearch(ctx, env)
	case envelope.IntentStatus:
		return env.Reply(map[string]any{"status": s.Status()}), nil
	case envelope.IntentIngest:
		return s.handleIngest(ctx, env)
	default:
		err := fmt.Errorf("unsupported intent %q: %w", env.MessageIntent(), domain.ErrInvalidArgument)
		return env.Fail(err), err
	}
}

func (s *Service) handleSearch(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	q, ok := env.Payload()["query"].(query.Query)
	if !ok {
		err := fmt.Errorf("search payload missing query: %w", domain.ErrInvalidArgument)
		return env.Fail(err), err
	}

	var (
		candidates []candidate.Candidate
		err        error
	)
	if vec := env.Embedding(); len(vec) > 0 {
		candidates, err = s.SearchWithVector(ctx, q, vec)
	} else {
		candidates, err = s.Search(ctx, q)
	}
	if err != nil {
		return env.Fail(err), err
	}
	return env.Reply(map[string]any{"candidates": candidates}), nil
}

func (s *Service) handleIngest(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	grants, ok := env.Payload()["grants"].([]grant.Grant)
	if !ok {
		err := fmt.Errorf("ingest payload missing grants: %w", domain.ErrInvalidArgument)
		return env.Fail(err), err
	}
	indexed, err := s.IndexBatch(ctx, grants)
	if err != nil {
		return env.Fail(err), err
	}
	return env.Reply(map[string]any{"indexed": indexed}), nil
}
