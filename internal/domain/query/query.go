// Package query defines the immutable search query submitted to the router.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// DefaultLimit bounds the result count when the caller does not set one.
const DefaultLimit = 10

// Filters is an exact-match filter set over candidate metadata.
// A key maps to the set of accepted values; a candidate matches when
// every key is present in its metadata with one of the accepted values.
type Filters map[string][]string

// Matches reports whether the metadata satisfies every filter condition.
func (f Filters) Matches(metadata map[string]string) bool {
	for key, accepted := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, v := range accepted {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so queries stay immutable after submission.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for k, vs := range f {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Query is an immutable search request.
type Query struct {
	text    string
	filters Filters
	targets []string
	limit   int
}

// New creates a query. A zero limit falls back to DefaultLimit;
// a negative limit is rejected.
func New(text string, limit int, filters Filters, targets []string) (Query, error) {
	if limit < 0 {
		return Query{}, fmt.Errorf("limit must be positive, got %d: %w", limit, domain.ErrInvalidArgument)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return Query{
		text:    text,
		filters: filters.Clone(),
		targets: append([]string(nil), targets...),
		limit:   limit,
	}, nil
}

// Text returns the raw query text.
func (q Query) Text() string { return q.text }

// Filters returns the filter set.
func (q Query) Filters() Filters { return q.filters }

// Targets returns the explicit target node ids, if any.
func (q Query) Targets() []string { return q.targets }

// Limit returns the result limit.
func (q Query) Limit() int { return q.limit }

// IsEmpty reports whether the query text is blank.
func (q Query) IsEmpty() bool { return strings.TrimSpace(q.text) == "" }

// Normalized returns the lowercased, whitespace-collapsed query text.
func (q Query) Normalized() string { return Normalize(q.text) }

// Tokens returns the distinct normalized query tokens in first-seen order.
func (q Query) Tokens() []string { return Tokens(q.text) }

// WithTargets derives a sub-query restricted to the given node ids.
// Used by compound-query decomposition; the original query is not mutated.
func (q Query) WithTargets(targets []string) Query {
	sub := q
	sub.targets = append([]string(nil), targets...)
	return sub
}

// Normalize lowercases text and collapses runs of whitespace to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Tokens splits normalized text into distinct tokens, preserving first-seen order.
func Tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// SortedTargets returns the target list sorted, for order-independent hashing.
func (q Query) SortedTargets() []string {
	out := append([]string(nil), q.targets...)
	sort.Strings(out)
	return out
}
