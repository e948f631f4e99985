// Package candidate defines a single retrieved item with its hybrid scores.
package candidate

import "time"

// Blend weights for combining semantic and lexical relevance.
const (
	SemanticWeight = 0.7
	LexicalWeight  = 0.3
)

// DeadlineKey is the metadata field consulted for deadline tie-breaking.
const DeadlineKey = "deadline"

// Candidate is one retrieved item. Created by a search node, copied
// (never mutated) when merged by the router.
type Candidate struct {
	id       string
	node     string
	text     string
	metadata map[string]string
	semantic float64
	lexical  float64
}

// New creates a candidate. The relevance score is derived from the
// semantic and lexical scores, never stored independently.
func New(id, node, text string, metadata map[string]string, semantic, lexical float64) Candidate {
	return Candidate{
		id:       id,
		node:     node,
		text:     text,
		metadata: metadata,
		semantic: semantic,
		lexical:  lexical,
	}
}

// ID returns the item identifier, unique within its owning node.
func (c *Candidate) ID() string { return c.id }

// Node returns the id of the node that produced this candidate.
func (c *Candidate) Node() string { return c.node }

// Text returns the raw text blob used for scoring.
func (c *Candidate) Text() string { return c.text }

// Metadata returns the domain-specific metadata fields.
func (c *Candidate) Metadata() map[string]string { return c.metadata }

// SemanticScore returns the vector-similarity score in [0,1].
func (c *Candidate) SemanticScore() float64 { return c.semantic }

// LexicalScore returns the token-overlap score in [0,1].
func (c *Candidate) LexicalScore() float64 { return c.lexical }

// RelevanceScore returns the blended ranking score in [0,1].
func (c *Candidate) RelevanceScore() float64 {
	return Blend(c.semantic, c.lexical)
}

// Deadline parses the deadline metadata field, if present.
// Returns the zero time when absent or unparseable.
func (c *Candidate) Deadline() time.Time {
	raw, ok := c.metadata[DeadlineKey]
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Blend combines semantic and lexical scores into the relevance score.
func Blend(semantic, lexical float64) float64 {
	return SemanticWeight*semantic + LexicalWeight*lexical
}
