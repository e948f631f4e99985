package router

import (
	"sort"

	"github.com/grantmesh/grantmesh/internal/domain/candidate"
)

// Merge combines candidate lists from multiple nodes into one ranked list:
// dedupe by id keeping the highest relevance, sort by relevance descending
// (ties broken by soonest deadline, then arrival order), truncate to limit.
func Merge(lists [][]candidate.Candidate, limit int) []candidate.Candidate {
	type ranked struct {
		cand candidate.Candidate
		seq  int
	}

	byID := make(map[string]int)
	merged := make([]ranked, 0)
	seq := 0
	for _, list := range lists {
		for _, c := range list {
			c := c
			if i, ok := byID[c.ID()]; ok {
				if c.RelevanceScore() > merged[i].cand.RelevanceScore() {
					merged[i].cand = c
				}
				continue
			}
			byID[c.ID()] = len(merged)
			merged = append(merged, ranked{cand: c, seq: seq})
			seq++
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := merged[i].cand.RelevanceScore(), merged[j].cand.RelevanceScore()
		if ri != rj {
			return ri > rj
		}
		di, dj := merged[i].cand.Deadline(), merged[j].cand.Deadline()
		switch {
		case di.IsZero() && dj.IsZero():
			return merged[i].seq < merged[j].seq
		case di.IsZero():
			return false
		case dj.IsZero():
			return true
		case !di.Equal(dj):
			return di.Before(dj)
		}
		return merged[i].seq < merged[j].seq
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	out := make([]candidate.Candidate, len(merged))
	for i, r := range merged {
		out[i] = r.cand
	}
	return out
}
