package router

import "github.com/grantmesh/grantmesh/internal/domain/query"

// Strategy names how a node set was selected, recorded for observability.
type Strategy string

// Selection strategies in priority order.
const (
	StrategyExplicit  Strategy = "explicit"
	StrategyKeyword   Strategy = "keyword"
	StrategySilo      Strategy = "silo"
	StrategyBroadcast Strategy = "broadcast"
)

// Select picks the dispatch set for a query. Strategies are tried in
// fixed priority order and the first non-empty set wins: explicit targets,
// capability keyword match, silo tag match, then broadcast to all.
func Select(reg *Registry, q query.Query) ([]Node, Strategy) {
	if targets := q.Targets(); len(targets) > 0 {
		if nodes := reg.ByIDs(targets); len(nodes) > 0 {
			return nodes, StrategyExplicit
		}
		// Every explicit target unknown: nothing else is a substitute.
		return nil, StrategyExplicit
	}
	if nodes := reg.ByCapability(q.Normalized()); len(nodes) > 0 {
		return nodes, StrategyKeyword
	}
	if nodes := reg.BySilo(q.Tokens()); len(nodes) > 0 {
		return nodes, StrategySilo
	}
	return reg.All(), StrategyBroadcast
}
