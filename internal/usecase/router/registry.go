package router

import (
	"fmt"
	"strings"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// Registry is the static node registry. Populated once at startup,
// read-only at runtime, so lookups need no locking.
type Registry struct {
	nodes []Node
	byID  map[string]Node
}

// NewRegistry builds a registry from the startup node set.
// Duplicate node ids are rejected.
func NewRegistry(nodes []Node) (*Registry, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		id := n.Registration().ID()
		if _, ok := byID[id]; ok {
			return nil, fmt.Errorf("duplicate node id %q: %w", id, domain.ErrInvalidArgument)
		}
		byID[id] = n
	}
	return &Registry{nodes: nodes, byID: byID}, nil
}

// NodeCount returns the number of registered nodes.
func (r *Registry) NodeCount() int { return len(r.nodes) }

// All returns every registered node in registration order.
func (r *Registry) All() []Node {
	return append([]Node(nil), r.nodes...)
}

// ByID returns the node with the given id.
func (r *Registry) ByID(id string) (Node, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// ByIDs resolves a target list, skipping unknown ids.
func (r *Registry) ByIDs(ids []string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := r.byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ByCapability returns nodes with a capability tag appearing in the
// normalized query text.
func (r *Registry) ByCapability(normalized string) []Node {
	var out []Node
	for _, n := range r.nodes {
		for _, cap := range n.Registration().Capabilities() {
			if strings.Contains(normalized, cap) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// BySilo returns nodes whose silo tag matches one of the query tokens.
func (r *Registry) BySilo(tokens []string) []Node {
	var out []Node
	for _, n := range r.nodes {
		silo := strings.ToLower(n.Registration().Silo())
		if silo == "" {
			continue
		}
		for _, t := range tokens {
			if t == silo {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
