// Package pool shares embedding model handles across all search nodes in
// the process. Loading a model is expensive; the pool guarantees at most
// one load per distinct model id.
package pool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// Factory loads an embedder for a model id. Called at most once per id
// while the load is outstanding.
type Factory func(ctx context.Context, modelID string) (domain.Embedder, error)

type loadState struct {
	ready    chan struct{}
	embedder domain.Embedder
	err      error
}

// Pool is a mutex-guarded lazy-init map of model id to embedder handle.
// Loads for distinct model ids never block each other; concurrent callers
// for the same id share one load.
type Pool struct {
	mu      sync.Mutex
	loads   map[string]*loadState
	factory Factory
	logger  *zap.Logger
}

// New creates a pool around a loader factory.
func New(factory Factory, logger *zap.Logger) *Pool {
	return &Pool{
		loads:   make(map[string]*loadState),
		factory: factory,
		logger:  logger,
	}
}

// GetOrLoad returns the shared embedder for a model id, loading it on
// first use. A failed load is surfaced to every waiter as
// ErrEmbedderUnavailable and is not retried internally; the failed state
// is cleared so a later call may attempt a fresh load explicitly.
func (p *Pool) GetOrLoad(ctx context.Context, modelID string) (domain.Embedder, error) {
	p.mu.Lock()
	if st, ok := p.loads[modelID]; ok {
		p.mu.Unlock()
		select {
		case <-st.ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for model %q: %w", modelID, ctx.Err())
		}
		if st.err != nil {
			return nil, st.err
		}
		return st.embedder, nil
	}

	st := &loadState{ready: make(chan struct{})}
	p.loads[modelID] = st
	p.mu.Unlock()

	p.logger.Info("Loading embedding model", zap.String("model", modelID))
	emb, err := p.factory(ctx, modelID)
	if err != nil {
		st.err = fmt.Errorf("load model %q: %w: %w", modelID, domain.ErrEmbedderUnavailable, err)
		p.mu.Lock()
		delete(p.loads, modelID)
		p.mu.Unlock()
		close(st.ready)
		p.logger.Error("Embedding model load failed", zap.String("model", modelID), zap.Error(err))
		return nil, st.err
	}

	st.embedder = emb
	close(st.ready)
	p.logger.Info("Embedding model ready", zap.String("model", modelID))
	return emb, nil
}

// Loaded reports whether a model id currently has a ready handle.
func (p *Pool) Loaded(modelID string) bool {
	p.mu.Lock()
	st, ok := p.loads[modelID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-st.ready:
		return st.err == nil
	default:
		return false
	}
}
