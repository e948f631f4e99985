// Package querycache is a bounded, time-expiring in-process store mapping
// query fingerprints to previously computed aggregate results. Derived
// data only: nodes can always be re-queried.
package querycache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grantmesh/grantmesh/internal/domain/candidate"
)

// DefaultMaxEntries bounds cache memory; overflow evicts oldest-first.
const DefaultMaxEntries = 1000

type entry struct {
	candidates []candidate.Candidate
	nodes      []string
	createdAt  time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// corrupt reports a malformed entry: treated as a miss and evicted.
func (e *entry) corrupt() bool {
	return e.candidates == nil || e.createdAt.IsZero() || e.ttl <= 0
}

// Cache is a concurrent-safe fingerprint-keyed result cache.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      []string // insertion order, oldest first
	maxEntries int
	hitTotal   *prometheus.CounterVec
}

// New creates a cache. maxEntries <= 0 falls back to DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
	}
}

// WithMetrics attaches a hit/miss counter vec (label "result").
func (c *Cache) WithMetrics(hitTotal *prometheus.CounterVec) *Cache {
	c.hitTotal = hitTotal
	return c
}

// Get returns the cached candidates and queried node set for a
// fingerprint. Expired or corrupt entries count as a miss and are evicted.
func (c *Cache) Get(fingerprint string) ([]candidate.Candidate, []string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		c.count("miss")
		return nil, nil, false
	}
	if e.corrupt() || e.expired(time.Now()) {
		c.remove(fingerprint)
		c.count("miss")
		return nil, nil, false
	}

	c.count("hit")
	return append([]candidate.Candidate(nil), e.candidates...), append([]string(nil), e.nodes...), true
}

// Put stores an ordered candidate list under a fingerprint. When the cache
// is full the oldest entries are pruned first (age-based, not LRU).
func (c *Cache) Put(fingerprint string, candidates []candidate.Candidate, nodes []string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if candidates == nil {
		candidates = []candidate.Candidate{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; ok {
		c.remove(fingerprint)
	}

	for len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[fingerprint] = &entry{
		candidates: append([]candidate.Candidate(nil), candidates...),
		nodes:      append([]string(nil), nodes...),
		createdAt:  time.Now(),
		ttl:        ttl,
	}
	c.order = append(c.order, fingerprint)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes an entry and its order slot. Caller holds the lock.
func (c *Cache) remove(fingerprint string) {
	delete(c.entries, fingerprint)
	for i, fp := range c.order {
		if fp == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// evictOldest drops the front of the insertion queue. Caller holds the lock.
func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		fp := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[fp]; ok {
			delete(c.entries, fp)
			return
		}
	}
}

func (c *Cache) count(result string) {
	if c.hitTotal != nil {
		c.hitTotal.WithLabelValues(result).Inc()
	}
}
