package router

import (
	"testing"
)

func testRegistry(t *testing.T) (*Registry, *mockNode, *mockNode, *mockNode) {
	t.Helper()
	uk := newMockNode(t, "innovate-uk", "innovate_uk", "UK", []string{"innovation", "smart grants"})
	eu := newMockNode(t, "horizon-europe", "horizon_europe", "EU", []string{"horizon", "research"})
	ukri := newMockNode(t, "ukri", "ukri", "UK", []string{"research council"})
	reg, err := NewRegistry([]Node{uk, eu, ukri})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg, uk, eu, ukri
}

func nodeIDs(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Registration().ID()
	}
	return out
}

func TestSelect_ExplicitTargets(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	q := mustQuery(t, "anything at all", 5, nil, []string{"ukri", "horizon-europe"})
	nodes, strategy := Select(reg, q)

	if strategy != StrategyExplicit {
		t.Errorf("strategy = %q", strategy)
	}
	got := nodeIDs(nodes)
	if len(got) != 2 || got[0] != "ukri" || got[1] != "horizon-europe" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_ExplicitTargetsSkipUnknown(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "anything", 5, nil, []string{"ukri", "missing"}))
	if strategy != StrategyExplicit {
		t.Errorf("strategy = %q", strategy)
	}
	if got := nodeIDs(nodes); len(got) != 1 || got[0] != "ukri" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_AllTargetsUnknownIsEmpty(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "research funding", 5, nil, []string{"ghost"}))
	if strategy != StrategyExplicit {
		t.Errorf("strategy = %q", strategy)
	}
	if len(nodes) != 0 {
		t.Errorf("unknown explicit targets must not fall back, got %v", nodeIDs(nodes))
	}
}

func TestSelect_ExplicitBeatsKeyword(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	// "research" would keyword-match horizon-europe, but the explicit
	// target wins.
	nodes, strategy := Select(reg, mustQuery(t, "research", 5, nil, []string{"innovate-uk"}))
	if strategy != StrategyExplicit {
		t.Errorf("strategy = %q", strategy)
	}
	if got := nodeIDs(nodes); len(got) != 1 || got[0] != "innovate-uk" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_KeywordMatch(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "Horizon collaboration projects", 5, nil, nil))
	if strategy != StrategyKeyword {
		t.Errorf("strategy = %q", strategy)
	}
	if got := nodeIDs(nodes); len(got) != 1 || got[0] != "horizon-europe" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_KeywordMatchesMultiWordCapability(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "apply for smart grants today", 5, nil, nil))
	if strategy != StrategyKeyword {
		t.Errorf("strategy = %q", strategy)
	}
	if got := nodeIDs(nodes); len(got) != 1 || got[0] != "innovate-uk" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_SiloMatch(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "uk manufacturing support", 5, nil, nil))
	if strategy != StrategySilo {
		t.Errorf("strategy = %q", strategy)
	}
	got := nodeIDs(nodes)
	if len(got) != 2 || got[0] != "innovate-uk" || got[1] != "ukri" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_KeywordBeatsSilo(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	// "uk" would silo-match, but the capability match takes priority.
	nodes, strategy := Select(reg, mustQuery(t, "uk horizon projects", 5, nil, nil))
	if strategy != StrategyKeyword {
		t.Errorf("strategy = %q", strategy)
	}
	if got := nodeIDs(nodes); len(got) != 1 || got[0] != "horizon-europe" {
		t.Errorf("nodes = %v", got)
	}
}

func TestSelect_Broadcast(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	nodes, strategy := Select(reg, mustQuery(t, "quantum computing", 5, nil, nil))
	if strategy != StrategyBroadcast {
		t.Errorf("strategy = %q", strategy)
	}
	if len(nodes) != reg.NodeCount() {
		t.Errorf("broadcast reached %d of %d nodes", len(nodes), reg.NodeCount())
	}
}
