// Package ingest distributes incoming grants across search nodes and
// drives per-node batch indexing through a bounded worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/grant"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
)

// Indexer is the node-side ingest contract.
type Indexer interface {
	Registration() domnode.Registration
	IndexBatch(ctx context.Context, grants []grant.Grant) (int, error)
}

// Service assigns each grant to its owning node and indexes per-node
// batches in parallel.
type Service struct {
	nodes  []Indexer
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates an ingest service. poolSize <= 0 defaults to half the CPUs.
func New(nodes []Indexer, poolSize int, logger *zap.Logger) (*Service, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required: %w", domain.ErrInvalidArgument)
	}
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Service{nodes: nodes, pool: pool, logger: logger}, nil
}

// Ingest indexes a single grant on its owning node.
func (s *Service) Ingest(ctx context.Context, g grant.Grant) error {
	n := s.assign(g)
	if _, err := n.IndexBatch(ctx, []grant.Grant{g}); err != nil {
		return fmt.Errorf("ingest grant %q: %w", g.ID(), err)
	}
	return nil
}

// IngestBatch groups grants by owning node and indexes every group in
// parallel. Returns the total indexed count; per-node failures are joined
// but do not stop the other groups.
func (s *Service) IngestBatch(ctx context.Context, grants []grant.Grant) (int, error) {
	if len(grants) == 0 {
		return 0, nil
	}

	groups := make(map[string][]grant.Grant)
	byID := make(map[string]Indexer, len(s.nodes))
	for _, g := range grants {
		n := s.assign(g)
		id := n.Registration().ID()
		groups[id] = append(groups[id], g)
		byID[id] = n
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		total   int
		errList []error
	)
	for id, group := range groups {
		id, group := id, group
		n := byID[id]
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			count, err := n.IndexBatch(ctx, group)
			mu.Lock()
			defer mu.Unlock()
			total += count
			if err != nil {
				errList = append(errList, fmt.Errorf("node %q: %w", id, err))
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			errList = append(errList, fmt.Errorf("submit batch for node %q: %w", id, err))
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errList) > 0 {
		s.logger.Warn("Batch ingest completed with failures",
			zap.Int("indexed", total),
			zap.Int("failed_groups", len(errList)),
		)
		return total, errors.Join(errList...)
	}

	s.logger.Info("Batch ingest completed",
		zap.Int("indexed", total),
		zap.Int("nodes", len(groups)),
	)
	return total, nil
}

// assign picks the owning node for a grant: funding body matching the node
// domain tag, then silo match, then the first registered node.
func (s *Service) assign(g grant.Grant) Indexer {
	body := strings.ToLower(strings.TrimSpace(g.FundingBody()))
	if body != "" {
		for _, n := range s.nodes {
			if strings.ToLower(n.Registration().Domain()) == body {
				return n
			}
		}
	}
	silo := strings.ToUpper(strings.TrimSpace(g.Silo()))
	if silo != "" {
		for _, n := range s.nodes {
			if n.Registration().Silo() == silo {
				return n
			}
		}
	}
	return s.nodes[0]
}

// Release shuts the worker pool down. The service must not be used after.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}
