package node

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/candidate"
	"github.com/grantmesh/grantmesh/internal/domain/envelope"
	"github.com/grantmesh/grantmesh/internal/domain/grant"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
	"github.com/grantmesh/grantmesh/internal/domain/query"
	"github.com/grantmesh/grantmesh/internal/repository/vecindex"
)

// --- Mocks ---

type mockEmbedder struct {
	vectors    map[string][]float32
	batchCalls int
	failBatch  bool
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if v, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func (m *mockEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.failBatch {
		return domain.BatchEmbeddingResult{}, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		res, _ := m.Embed(ctx, text)
		out[i] = res.Embedding
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type mockSource struct {
	embedder domain.Embedder
	err      error
}

func (m *mockSource) GetOrLoad(_ context.Context, _ string) (domain.Embedder, error) {
	return m.embedder, m.err
}

func testRegistration(t *testing.T) domnode.Registration {
	t.Helper()
	reg, err := domnode.NewRegistration("innovate-uk", "Innovate UK", "innovate_uk", "UK",
		[]string{"smart", "ktp"})
	if err != nil {
		t.Fatalf("registration: %v", err)
	}
	return reg
}

func newTestService(t *testing.T, emb *mockEmbedder) (*Service, *vecindex.Index) {
	t.Helper()
	ix := vecindex.New()
	svc := New(testRegistration(t), ix, &mockSource{embedder: emb}, "test-model", zap.NewNop())
	return svc, ix
}

func mustQuery(t *testing.T, text string, limit int) query.Query {
	t.Helper()
	q, err := query.New(text, limit, nil, nil)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return q
}

// --- Tests ---

func TestLexical(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		text   string
		want   float64
	}{
		{"all matched", []string{"solar", "energy"}, "solar energy fund", 1},
		{"partial", []string{"solar", "energy", "storage"}, "solar fund", 1.0 / 3},
		{"case insensitive", []string{"solar"}, "SOLAR Panels", 1},
		{"none matched", []string{"wind"}, "solar fund", 0},
		{"empty query", nil, "solar", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lexical(tt.tokens, tt.text)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Lexical() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc, _ := newTestService(t, &mockEmbedder{})
	got, err := svc.Search(context.Background(), mustQuery(t, "   ", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("empty query must return no candidates, got %d", len(got))
	}
}

func TestSearch_EmbedderUnavailable(t *testing.T) {
	svc := New(testRegistration(t), vecindex.New(),
		&mockSource{err: domain.ErrEmbedderUnavailable}, "test-model", zap.NewNop())

	_, err := svc.Search(context.Background(), mustQuery(t, "solar", 5))
	if !errors.Is(err, domain.ErrEmbedderUnavailable) {
		t.Errorf("expected ErrEmbedderUnavailable, got %v", err)
	}
}

func TestSearchWithVector_BlendedRanking(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	// "close" has the higher semantic score; "overlap" wins on lexical.
	ix.Upsert(vecindex.Item{ID: "close", Vector: []float32{1, 0.1}, Text: "rural development fund"})
	ix.Upsert(vecindex.Item{ID: "overlap", Vector: []float32{1, 0.3}, Text: "solar energy grants"})

	got, err := svc.SearchWithVector(context.Background(), mustQuery(t, "solar energy", 5), []float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d", len(got))
	}
	if got[0].ID() != "overlap" {
		t.Errorf("lexical overlap should outrank the small semantic edge, got %q first", got[0].ID())
	}
	if got[0].RelevanceScore() < got[1].RelevanceScore() {
		t.Error("results must be ordered by relevance descending")
	}
}

func TestSearchWithVector_LimitTruncates(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	for i := 0; i < 10; i++ {
		ix.Upsert(vecindex.Item{
			ID:     string(rune('a' + i)),
			Vector: []float32{1, float32(i) * 0.05},
			Text:   "grant",
		})
	}

	got, err := svc.SearchWithVector(context.Background(), mustQuery(t, "solar", 3), []float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("candidates = %d, want 3", len(got))
	}
}

func TestSearchWithVector_AppliesFilters(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	ix.Upsert(vecindex.Item{ID: "uk", Vector: []float32{1, 0}, Metadata: map[string]string{"silo": "UK"}})
	ix.Upsert(vecindex.Item{ID: "eu", Vector: []float32{1, 0}, Metadata: map[string]string{"silo": "EU"}})

	q, err := query.New("solar", 5, query.Filters{"silo": {"EU"}}, nil)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	got, err := svc.SearchWithVector(context.Background(), q, []float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "eu" {
		t.Errorf("candidates = %+v", got)
	}
}

func TestIndexBatch_OneEmbedCallPerChunk(t *testing.T) {
	emb := &mockEmbedder{}
	svc, ix := newTestService(t, emb)
	svc.WithBatchSize(2)

	grants := make([]grant.Grant, 5)
	for i := range grants {
		g, err := grant.New(grant.Attrs{Title: "Grant " + string(rune('A'+i))})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		grants[i] = g
	}

	indexed, err := svc.IndexBatch(context.Background(), grants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 5 {
		t.Errorf("indexed = %d", indexed)
	}
	// 5 grants with chunk size 2: chunks of 2, 2, 1.
	if emb.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3", emb.batchCalls)
	}
	if ix.Count() != 5 {
		t.Errorf("index count = %d", ix.Count())
	}
}

func TestIndexBatch_ChunkFailureKeepsEarlierChunks(t *testing.T) {
	emb := &mockEmbedder{}
	svc, ix := newTestService(t, emb)
	svc.WithBatchSize(2)

	grants := make([]grant.Grant, 4)
	for i := range grants {
		g, err := grant.New(grant.Attrs{Title: "Grant " + string(rune('A'+i))})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		grants[i] = g
	}

	// First chunk succeeds, then the provider goes down.
	indexed, err := svc.IndexBatch(context.Background(), grants[:2])
	if err != nil || indexed != 2 {
		t.Fatalf("first chunk: indexed=%d err=%v", indexed, err)
	}

	emb.failBatch = true
	indexed, err = svc.IndexBatch(context.Background(), grants[2:])
	if err == nil {
		t.Fatal("expected error")
	}
	if indexed != 0 {
		t.Errorf("failed batch indexed = %d", indexed)
	}
	if ix.Count() != 2 {
		t.Errorf("earlier items must survive, count = %d", ix.Count())
	}
}

func TestIndexBatch_Empty(t *testing.T) {
	svc, _ := newTestService(t, &mockEmbedder{})
	indexed, err := svc.IndexBatch(context.Background(), nil)
	if err != nil || indexed != 0 {
		t.Errorf("indexed=%d err=%v", indexed, err)
	}
}

func TestIndex_Upserts(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	g, err := grant.New(grant.Attrs{ID: "g1", Title: "Smart Grants"})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := svc.Index(context.Background(), g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Index(context.Background(), g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ix.Count() != 1 {
		t.Errorf("re-indexing the same id must overwrite, count = %d", ix.Count())
	}
}

func TestStatus_CountsQueries(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	ix.Upsert(vecindex.Item{ID: "a", Vector: []float32{1, 0}})

	if _, err := svc.SearchWithVector(context.Background(), mustQuery(t, "solar", 5), []float32{1, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := svc.Status()
	if st.Indexed != 1 {
		t.Errorf("indexed = %d", st.Indexed)
	}
	if st.Queries != 1 {
		t.Errorf("queries = %d", st.Queries)
	}
	if st.Registration.ID() != "innovate-uk" {
		t.Errorf("registration id = %q", st.Registration.ID())
	}
}

func TestHandle_Search(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	ix.Upsert(vecindex.Item{ID: "a", Vector: []float32{1, 0}, Text: "solar"})

	env := envelope.NewQuery("router", "innovate-uk", envelope.IntentSearch, map[string]any{
		"query": mustQuery(t, "solar", 5),
	}).WithEmbedding([]float32{1, 0})

	resp, err := svc.Handle(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.MessageType() != envelope.TypeResponse {
		t.Fatalf("type = %q", resp.MessageType())
	}
	if resp.CorrelationID() != env.CorrelationID() {
		t.Error("response must carry the request correlation id")
	}
	candidates, ok := resp.Payload()["candidates"].([]candidate.Candidate)
	if !ok {
		t.Fatal("candidates payload missing")
	}
	if len(candidates) != 1 || candidates[0].ID() != "a" {
		t.Errorf("candidates = %+v", candidates)
	}
}

func TestHandle_MissingQueryPayload(t *testing.T) {
	svc, _ := newTestService(t, &mockEmbedder{})
	env := envelope.NewQuery("router", "innovate-uk", envelope.IntentSearch, map[string]any{})

	resp, err := svc.Handle(context.Background(), env)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if resp.MessageType() != envelope.TypeError {
		t.Errorf("type = %q", resp.MessageType())
	}
}

func TestHandle_Status(t *testing.T) {
	svc, _ := newTestService(t, &mockEmbedder{})
	env := envelope.NewQuery("router", "innovate-uk", envelope.IntentStatus, nil)

	resp, err := svc.Handle(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, ok := resp.Payload()["status"].(domnode.Status)
	if !ok {
		t.Fatal("status payload missing")
	}
	if st.Registration.ID() != "innovate-uk" {
		t.Errorf("registration id = %q", st.Registration.ID())
	}
}

func TestHandle_Ingest(t *testing.T) {
	svc, ix := newTestService(t, &mockEmbedder{})
	g, err := grant.New(grant.Attrs{Title: "Smart Grants"})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	env := envelope.NewQuery("router", "innovate-uk", envelope.IntentIngest, map[string]any{
		"grants": []grant.Grant{g},
	})

	resp, err := svc.Handle(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payload()["indexed"] != 1 {
		t.Errorf("indexed = %v", resp.Payload()["indexed"])
	}
	if ix.Count() != 1 {
		t.Errorf("index count = %d", ix.Count())
	}
}
