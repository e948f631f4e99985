package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct{ id string }

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1}}, nil
}

// --- Tests ---

func TestGetOrLoad_LoadsOnce(t *testing.T) {
	var loads atomic.Int32
	p := New(func(_ context.Context, modelID string) (domain.Embedder, error) {
		loads.Add(1)
		return &mockEmbedder{id: modelID}, nil
	}, zap.NewNop())

	first, err := p.GetOrLoad(context.Background(), "model-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.GetOrLoad(context.Background(), "model-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
	if first != second {
		t.Error("callers must share the same handle")
	}
}

func TestGetOrLoad_ConcurrentSingleLoad(t *testing.T) {
	var loads atomic.Int32
	started := make(chan struct{})
	p := New(func(_ context.Context, modelID string) (domain.Embedder, error) {
		loads.Add(1)
		<-started // hold the load open until all goroutines are queued
		return &mockEmbedder{id: modelID}, nil
	}, zap.NewNop())

	const n = 16
	results := make([]domain.Embedder, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emb, err := p.GetOrLoad(context.Background(), "model-a")
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
				return
			}
			results[i] = emb
		}(i)
	}
	close(started)
	wg.Wait()

	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different handle", i)
		}
	}
}

func TestGetOrLoad_DistinctModels(t *testing.T) {
	p := New(func(_ context.Context, modelID string) (domain.Embedder, error) {
		return &mockEmbedder{id: modelID}, nil
	}, zap.NewNop())

	a, err := p.GetOrLoad(context.Background(), "model-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.GetOrLoad(context.Background(), "model-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("distinct model ids must not share a handle")
	}
}

func TestGetOrLoad_FailureClearsEntry(t *testing.T) {
	attempts := 0
	p := New(func(_ context.Context, modelID string) (domain.Embedder, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("gpu oom")
		}
		return &mockEmbedder{id: modelID}, nil
	}, zap.NewNop())

	_, err := p.GetOrLoad(context.Background(), "model-a")
	if !errors.Is(err, domain.ErrEmbedderUnavailable) {
		t.Fatalf("expected ErrEmbedderUnavailable, got %v", err)
	}
	if p.Loaded("model-a") {
		t.Error("failed load must not be cached")
	}

	// A later call retries the load.
	emb, err := p.GetOrLoad(context.Background(), "model-a")
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if emb == nil {
		t.Fatal("nil embedder")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestLoaded(t *testing.T) {
	p := New(func(_ context.Context, modelID string) (domain.Embedder, error) {
		return &mockEmbedder{id: modelID}, nil
	}, zap.NewNop())

	if p.Loaded("model-a") {
		t.Error("nothing loaded yet")
	}
	if _, err := p.GetOrLoad(context.Background(), "model-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Loaded("model-a") {
		t.Error("model-a should be loaded")
	}
}
