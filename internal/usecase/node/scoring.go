package node

import "github.com/grantmesh/grantmesh/internal/domain/query"

// Lexical scores token overlap: the fraction of distinct query tokens that
// appear in the text. Returns a value in [0,1]; an empty query scores 0.
func Lexical(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, t := range query.Tokens(text) {
		present[t] = struct{}{}
	}
	matched := 0
	for _, t := range queryTokens {
		if _, ok := present[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
