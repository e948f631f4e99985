// Package router orchestrates query fan-out across search nodes: cache
// lookup, advisory enrichment, compound-query decomposition, node
// selection, concurrent dispatch with retries, and result merging.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/analytics"
	"github.com/grantmesh/grantmesh/internal/domain/candidate"
	"github.com/grantmesh/grantmesh/internal/domain/envelope"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
	"github.com/grantmesh/grantmesh/internal/domain/query"
	"github.com/grantmesh/grantmesh/internal/metrics"
	"github.com/grantmesh/grantmesh/internal/repository/querycache"
)

// RouterID is the sender id stamped on outgoing envelopes.
const RouterID = "router"

// Dispatch defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 5 * time.Second
	DefaultBackoff        = time.Second
	DefaultCacheTTL       = 5 * time.Minute
)

// Options tune the dispatch and cache behavior.
type Options struct {
	MaxAttempts    int           // per-node attempts before dropping
	AttemptTimeout time.Duration // per-attempt deadline
	Backoff        time.Duration // wait before attempt 2, doubled per retry
	CacheTTL       time.Duration // merged-result cache lifetime
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	return o
}

// Aggregate is the merged result of one routed query.
type Aggregate struct {
	Query        string
	Nodes        []string
	Candidates   []candidate.Candidate
	TotalResults int
	CacheHit     bool
	Degraded     []string
	TotalFailure bool
	Latency      time.Duration
	Advisory     string
}

// Service routes queries across the node registry.
type Service struct {
	registry  *Registry
	cache     Cache
	advisor   Advisor
	sink      AnalyticsSink
	embedders EmbedderSource
	modelID   string
	clusters  []Cluster
	opts      Options
	logger    *zap.Logger
}

// New creates a router. Advisor and sink may be nil.
func New(
	registry *Registry,
	cache Cache,
	advisor Advisor,
	sink AnalyticsSink,
	embedders EmbedderSource,
	modelID string,
	clusters []Cluster,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry:  registry,
		cache:     cache,
		advisor:   advisor,
		sink:      sink,
		embedders: embedders,
		modelID:   modelID,
		clusters:  clusters,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Route executes the full query pipeline and returns the merged aggregate.
// Partial node failure degrades the result; only invalid input and an
// unavailable embedder surface as errors.
func (s *Service) Route(ctx context.Context, q query.Query) (Aggregate, error) {
	start := time.Now()

	if q.IsEmpty() {
		agg := Aggregate{
			Query:      q.Text(),
			Candidates: []candidate.Candidate{},
			Latency:    time.Since(start),
		}
		s.finish(ctx, agg, nil)
		return agg, nil
	}

	fp := querycache.Fingerprint(q)
	if cached, nodes, ok := s.cache.Get(fp); ok {
		agg := Aggregate{
			Query:        q.Text(),
			Nodes:        nodes,
			Candidates:   cached,
			TotalResults: len(cached),
			CacheHit:     true,
			Latency:      time.Since(start),
		}
		s.finish(ctx, agg, nil)
		return agg, nil
	}

	advisory := s.advise(ctx, q)

	vec, err := s.embed(ctx, q)
	if err != nil {
		return Aggregate{}, err
	}

	subs := Decompose(q, s.clusters, s.registry)

	// Resolve every branch's dispatch set up front: a node reached by
	// several sub-queries answers only once, for the first branch naming it.
	type branch struct {
		sub   query.Query
		nodes []Node
	}
	var nodeIDs []string
	branches := make([]branch, 0, len(subs))
	seenNode := make(map[string]struct{})
	for _, sub := range subs {
		nodes, strategy := Select(s.registry, sub)
		s.logger.Debug("Selected nodes",
			zap.String("strategy", string(strategy)),
			zap.Int("nodes", len(nodes)),
		)

		fresh := nodes[:0:0]
		for _, n := range nodes {
			id := n.Registration().ID()
			if _, ok := seenNode[id]; ok {
				continue
			}
			seenNode[id] = struct{}{}
			fresh = append(fresh, n)
			nodeIDs = append(nodeIDs, id)
		}
		branches = append(branches, branch{sub: sub, nodes: fresh})
	}

	// All branches fan out concurrently; each branch in turn fans out to
	// its node set. Total latency is bounded by the slowest node, not the
	// sum of branches.
	branchLists := make([][][]candidate.Candidate, len(branches))
	branchOutcomes := make([][]analytics.NodeOutcome, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		wg.Add(1)
		go func(i int, b branch) {
			defer wg.Done()
			branchLists[i], branchOutcomes[i] = s.dispatch(ctx, b.nodes, b.sub, vec)
		}(i, b)
	}
	wg.Wait()

	var (
		lists     [][]candidate.Candidate
		outcomes  []analytics.NodeOutcome
		degraded  []string
		responded int
	)
	for i := range branches {
		lists = append(lists, branchLists[i]...)
		for _, o := range branchOutcomes[i] {
			outcomes = append(outcomes, o)
			if o.Failed {
				degraded = append(degraded, o.Node)
			} else {
				responded++
			}
		}
	}

	merged := Merge(lists, q.Limit())

	// Zero responding nodes is a routing failure, whether every dispatch
	// was exhausted or no node could be selected at all.
	agg := Aggregate{
		Query:        q.Text(),
		Nodes:        nodeIDs,
		Candidates:   merged,
		TotalResults: len(merged),
		Degraded:     degraded,
		TotalFailure: responded == 0,
		Latency:      time.Since(start),
		Advisory:     advisory,
	}

	if !agg.TotalFailure {
		s.cache.Put(fp, merged, nodeIDs, s.opts.CacheTTL)
	}

	s.finish(ctx, agg, outcomes)
	return agg, nil
}

// advise runs the optional advisory pre-step. Failure degrades silently.
func (s *Service) advise(ctx context.Context, q query.Query) string {
	if s.advisor == nil {
		return ""
	}
	text, err := s.advisor.Advise(ctx, q.Text())
	if err != nil {
		s.logger.Warn("Advisory step failed", zap.Error(err))
		return ""
	}
	return text
}

// embed vectorizes the query once; nodes reuse the vector via the envelope.
func (s *Service) embed(ctx context.Context, q query.Query) ([]float32, error) {
	emb, err := s.embedders.GetOrLoad(ctx, s.modelID)
	if err != nil {
		return nil, err
	}
	res, err := emb.Embed(ctx, q.Normalized())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	return res.Embedding, nil
}

// dispatch fans a sub-query out to its node set concurrently and waits for
// every node to succeed or exhaust its attempts.
func (s *Service) dispatch(
	ctx context.Context, nodes []Node, q query.Query, vec []float32,
) ([][]candidate.Candidate, []analytics.NodeOutcome) {
	lists := make([][]candidate.Candidate, len(nodes))
	outcomes := make([]analytics.NodeOutcome, len(nodes))

	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n Node) {
			defer wg.Done()
			lists[i], outcomes[i] = s.dispatchOne(ctx, n, q, vec)
		}(i, n)
	}
	wg.Wait()

	return lists, outcomes
}

// dispatchOne sends a query envelope to one node with per-attempt timeout
// and exponential backoff between attempts.
func (s *Service) dispatchOne(
	ctx context.Context, n Node, q query.Query, vec []float32,
) ([]candidate.Candidate, analytics.NodeOutcome) {
	id := n.Registration().ID()
	start := time.Now()

	var lastErr error
	attempts := 0
	backoff := s.opts.Backoff
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			if !sleep(ctx, backoff) {
				lastErr = ctx.Err()
				break
			}
			backoff *= 2
		}

		env := envelope.NewQuery(RouterID, id, envelope.IntentSearch, map[string]any{
			"query": q,
		}).WithEmbedding(vec)

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		resp, err := n.Handle(attemptCtx, env)
		cancel()

		if err != nil || resp.MessageType() != envelope.TypeResponse {
			if err == nil {
				err = fmt.Errorf("node %q returned %s envelope", id, resp.MessageType())
			}
			lastErr = err
			s.logger.Warn("Node dispatch attempt failed",
				zap.String("node", id),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			// Retrying cannot fix a rejected request.
			if errors.Is(err, domain.ErrInvalidArgument) {
				break
			}
			continue
		}

		candidates, _ := resp.Payload()["candidates"].([]candidate.Candidate)
		latency := time.Since(start)

		outcome := "ok"
		if attempt > 1 {
			outcome = "retried"
		}
		metrics.NodeDispatchTotal.WithLabelValues(id, outcome).Inc()
		metrics.NodeDispatchDuration.WithLabelValues(id).Observe(latency.Seconds())

		return candidates, analytics.NodeOutcome{
			Node:     id,
			Latency:  latency,
			Attempts: attempt,
			Results:  len(candidates),
		}
	}

	latency := time.Since(start)
	metrics.NodeDispatchTotal.WithLabelValues(id, "dropped").Inc()
	metrics.NodeDispatchDuration.WithLabelValues(id).Observe(latency.Seconds())
	s.logger.Error("Node dropped after exhausting attempts",
		zap.String("node", id),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)

	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	}
	return nil, analytics.NodeOutcome{
		Node:     id,
		Latency:  latency,
		Attempts: attempts,
		Failed:   true,
		Error:    errText,
	}
}

// Statuses collects a point-in-time view of every registered node.
func (s *Service) Statuses(ctx context.Context) []domnode.Status {
	nodes := s.registry.All()
	out := make([]domnode.Status, 0, len(nodes))
	for _, n := range nodes {
		st, err := s.nodeStatus(ctx, n)
		if err != nil {
			s.logger.Warn("Node status request failed",
				zap.String("node", n.Registration().ID()), zap.Error(err))
			st = domnode.Status{Registration: n.Registration()}
		}
		out = append(out, st)
	}
	return out
}

// Status returns one node's status by id.
func (s *Service) Status(ctx context.Context, id string) (domnode.Status, error) {
	n, ok := s.registry.ByID(id)
	if !ok {
		return domnode.Status{}, fmt.Errorf("node %q: %w", id, domain.ErrNotFound)
	}
	return s.nodeStatus(ctx, n)
}

func (s *Service) nodeStatus(ctx context.Context, n Node) (domnode.Status, error) {
	env := envelope.NewQuery(RouterID, n.Registration().ID(), envelope.IntentStatus, map[string]any{})
	resp, err := n.Handle(ctx, env)
	if err != nil {
		return domnode.Status{}, fmt.Errorf("node status: %w", err)
	}
	st, ok := resp.Payload()["status"].(domnode.Status)
	if !ok {
		return domnode.Status{}, fmt.Errorf("node %q returned malformed status payload", n.Registration().ID())
	}
	return st, nil
}

// finish emits metrics and the analytics record for a completed query.
func (s *Service) finish(ctx context.Context, agg Aggregate, outcomes []analytics.NodeOutcome) {
	cache := "miss"
	if agg.CacheHit {
		cache = "hit"
	}
	outcome := "ok"
	switch {
	case agg.TotalFailure:
		outcome = "failed"
	case len(agg.Degraded) > 0:
		outcome = "degraded"
	}
	metrics.QueriesTotal.WithLabelValues(cache, outcome).Inc()
	metrics.QueryDuration.WithLabelValues(cache).Observe(agg.Latency.Seconds())

	if s.sink == nil {
		return
	}
	rec := analytics.Record{
		Timestamp:    time.Now().UTC(),
		Query:        agg.Query,
		Nodes:        agg.Nodes,
		CacheHit:     agg.CacheHit,
		Outcomes:     outcomes,
		TotalLatency: agg.Latency,
		Results:      agg.TotalResults,
	}
	if err := s.sink.Append(ctx, rec); err != nil {
		s.logger.Warn("Failed to append analytics record", zap.Error(err))
	}
}

// sleep waits for d or until the context is done. Reports whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
