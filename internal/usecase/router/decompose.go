package router

import (
	"sort"
	"strings"

	"github.com/grantmesh/grantmesh/internal/domain/query"
)

// Cluster is one configured funding-body keyword cluster. A query matching
// two or more clusters is compound and fans out as one sub-query per
// cluster, each restricted to that cluster's nodes.
type Cluster struct {
	Name     string
	Keywords []string
}

// matches reports whether any cluster keyword occurs in the query tokens.
func (c Cluster) matches(tokens map[string]struct{}) bool {
	for _, kw := range c.Keywords {
		if _, ok := tokens[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

// nodeIDs returns the cluster's node set: nodes whose domain tag equals
// the cluster name, or whose capability tags intersect its keywords.
func (c Cluster) nodeIDs(reg *Registry) []string {
	name := strings.ToLower(c.Name)
	kws := make(map[string]struct{}, len(c.Keywords))
	for _, kw := range c.Keywords {
		kws[strings.ToLower(kw)] = struct{}{}
	}

	var ids []string
	for _, n := range reg.All() {
		r := n.Registration()
		if strings.ToLower(r.Domain()) == name {
			ids = append(ids, r.ID())
			continue
		}
		for _, cap := range r.Capabilities() {
			if _, ok := kws[cap]; ok {
				ids = append(ids, r.ID())
				break
			}
		}
	}
	return ids
}

// Decompose splits a compound query into per-cluster sub-queries. A query
// is compound when it matches at least two clusters resolving to at least
// two distinct non-empty node sets; anything else routes as-is. Explicit
// targets always suppress decomposition.
func Decompose(q query.Query, clusters []Cluster, reg *Registry) []query.Query {
	if len(q.Targets()) > 0 || len(clusters) < 2 {
		return []query.Query{q}
	}

	tokens := make(map[string]struct{})
	for _, t := range q.Tokens() {
		tokens[t] = struct{}{}
	}

	type split struct {
		ids []string
	}
	var splits []split
	seen := make(map[string]struct{})
	for _, c := range clusters {
		if !c.matches(tokens) {
			continue
		}
		ids := c.nodeIDs(reg)
		if len(ids) == 0 {
			continue
		}
		key := strings.Join(sortedCopy(ids), "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		splits = append(splits, split{ids: ids})
	}

	if len(splits) < 2 {
		return []query.Query{q}
	}

	subs := make([]query.Query, len(splits))
	for i, sp := range splits {
		subs[i] = q.WithTargets(sp.ids)
	}
	return subs
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
