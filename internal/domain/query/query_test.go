package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/grantmesh/grantmesh/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	q, err := New("solar energy grants", 0, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit() != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, q.Limit())
	}
}

func TestNew_NegativeLimit(t *testing.T) {
	_, err := New("solar", -1, nil, nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"blank", "", true},
		{"whitespace only", "   \t ", true},
		{"non-empty", "solar", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(tt.text, 5, nil, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.IsEmpty() != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", q.IsEmpty(), tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  Solar   ENERGY\tGrants ")
	if got != "solar energy grants" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestTokens_DistinctFirstSeen(t *testing.T) {
	got := Tokens("Solar solar energy SOLAR wind")
	want := []string{"solar", "energy", "wind"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestFilters_Matches(t *testing.T) {
	f := Filters{"silo": {"UK", "EU"}, "currency": {"GBP"}}

	tests := []struct {
		name     string
		metadata map[string]string
		want     bool
	}{
		{"all match", map[string]string{"silo": "UK", "currency": "GBP"}, true},
		{"alternate value", map[string]string{"silo": "EU", "currency": "GBP"}, true},
		{"wrong value", map[string]string{"silo": "US", "currency": "GBP"}, false},
		{"missing key", map[string]string{"currency": "GBP"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.metadata); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilters_EmptyMatchesEverything(t *testing.T) {
	var f Filters
	if !f.Matches(map[string]string{"anything": "at all"}) {
		t.Error("nil filters should match any metadata")
	}
	if !f.Matches(nil) {
		t.Error("nil filters should match nil metadata")
	}
}

func TestQuery_Immutable(t *testing.T) {
	filters := Filters{"silo": {"UK"}}
	targets := []string{"node-a"}
	q, err := New("solar", 5, filters, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	filters["silo"][0] = "EU"
	targets[0] = "node-b"

	if q.Filters()["silo"][0] != "UK" {
		t.Error("mutating the source filters leaked into the query")
	}
	if q.Targets()[0] != "node-a" {
		t.Error("mutating the source targets leaked into the query")
	}
}

func TestWithTargets(t *testing.T) {
	q, err := New("solar", 5, Filters{"silo": {"UK"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := q.WithTargets([]string{"node-a", "node-b"})

	if len(q.Targets()) != 0 {
		t.Error("original query targets changed")
	}
	if !reflect.DeepEqual(sub.Targets(), []string{"node-a", "node-b"}) {
		t.Errorf("sub targets = %v", sub.Targets())
	}
	if sub.Text() != q.Text() || sub.Limit() != q.Limit() {
		t.Error("sub-query should keep text and limit")
	}
}

func TestSortedTargets(t *testing.T) {
	q, err := New("solar", 5, nil, []string{"b", "a", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(q.SortedTargets(), []string{"a", "b", "c"}) {
		t.Errorf("SortedTargets() = %v", q.SortedTargets())
	}
	if !reflect.DeepEqual(q.Targets(), []string{"b", "a", "c"}) {
		t.Error("SortedTargets must not reorder the original targets")
	}
}
