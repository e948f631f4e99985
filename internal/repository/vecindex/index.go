// Package vecindex is an in-process vector index owned exclusively by one
// search node. Brute-force cosine similarity over the node's items; filters
// are applied before scoring so the over-fetch budget is never wasted on
// items later discarded.
package vecindex

import (
	"math"
	"sort"
	"sync"

	"github.com/grantmesh/grantmesh/internal/domain/query"
)

// Item is one stored entry.
type Item struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Hit is one nearest-neighbor match. Score is cosine similarity clamped
// to [0,1].
type Hit struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]string
}

type stored struct {
	Item
	seq uint64
}

// Index is a concurrent-safe in-memory vector index.
type Index struct {
	mu    sync.RWMutex
	items map[string]*stored
	next  uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{items: make(map[string]*stored)}
}

// Upsert stores one item, replacing any existing entry with the same id.
// A replaced item keeps its original insertion position.
func (ix *Index) Upsert(item Item) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upsertLocked(item)
}

// UpsertBatch stores a batch of items in one write.
func (ix *Index) UpsertBatch(items []Item) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, item := range items {
		ix.upsertLocked(item)
	}
}

func (ix *Index) upsertLocked(item Item) {
	if prev, ok := ix.items[item.ID]; ok {
		prev.Item = item
		return
	}
	ix.items[item.ID] = &stored{Item: item, seq: ix.next}
	ix.next++
}

// Count returns the number of stored items.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Search returns up to k items nearest to the query vector, filtered by
// exact metadata match before scoring. Results are ordered by similarity
// descending; equal scores keep insertion order.
func (ix *Index) Search(vector []float32, k int, filters query.Filters) []Hit {
	if k <= 0 {
		return nil
	}

	type scoredHit struct {
		hit Hit
		seq uint64
	}

	ix.mu.RLock()
	scored := make([]scoredHit, 0, len(ix.items))
	for _, it := range ix.items {
		if !filters.Matches(it.Metadata) {
			continue
		}
		scored = append(scored, scoredHit{
			hit: Hit{
				ID:       it.ID,
				Score:    Cosine(vector, it.Vector),
				Text:     it.Text,
				Metadata: it.Metadata,
			},
			seq: it.seq,
		})
	}
	ix.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].hit.Score != scored[j].hit.Score {
			return scored[i].hit.Score > scored[j].hit.Score
		}
		return scored[i].seq < scored[j].seq
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	hits := make([]Hit, len(scored))
	for i, s := range scored {
		hits[i] = s.hit
	}
	return hits
}

// Cosine computes cosine similarity clamped to [0,1]. Zero vectors score 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
