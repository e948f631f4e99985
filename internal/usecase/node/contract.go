package node

import (
	"context"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/query"
	"github.com/grantmesh/grantmesh/internal/repository/vecindex"
)

// Index is the vector store owned by one node.
type Index interface {
	Upsert(item vecindex.Item)
	UpsertBatch(items []vecindex.Item)
	Count() int
	Search(vector []float32, k int, filters query.Filters) []vecindex.Hit
}

// EmbedderSource resolves the shared embedder for a model id.
type EmbedderSource interface {
	GetOrLoad(ctx context.Context, modelID string) (domain.Embedder, error)
}
