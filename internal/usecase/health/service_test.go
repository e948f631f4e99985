package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct{ err error }

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct{ err error }

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockMesh struct{ nodes int }

func (m *mockMesh) NodeCount() int { return m.nodes }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{}, &mockMesh{nodes: 3})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %q", report.Status)
	}
	for name, result := range report.Checks {
		if result != CheckOK {
			t.Errorf("check %q = %q", name, result)
		}
	}
	if len(report.Checks) != 3 {
		t.Errorf("checks = %d", len(report.Checks))
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("connection refused")},
		&mockEmbeddingChecker{}, &mockMesh{nodes: 3})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %q", report.Status)
	}
	if report.Checks["database"] != CheckError {
		t.Errorf("database check = %q", report.Checks["database"])
	}
	if report.Checks["embedding"] != CheckOK {
		t.Errorf("embedding check = %q", report.Checks["embedding"])
	}
}

func TestCheck_EmbeddingDown(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{err: errors.New("api key invalid")},
		&mockMesh{nodes: 3})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %q", report.Status)
	}
	if report.Checks["embedding"] != CheckError {
		t.Errorf("embedding check = %q", report.Checks["embedding"])
	}
}

func TestCheck_EmptyMeshIsUnhealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{}, &mockMesh{nodes: 0})

	report := svc.Check(context.Background())
	if report.Status != Unhealthy {
		t.Errorf("status = %q", report.Status)
	}
	if report.Checks["mesh"] != CheckError {
		t.Errorf("mesh check = %q", report.Checks["mesh"])
	}
}

func TestCheck_NilComponentsSkipped(t *testing.T) {
	svc := New(nil, nil, &mockMesh{nodes: 1})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %q", report.Status)
	}
	if _, ok := report.Checks["database"]; ok {
		t.Error("unconfigured database must not be checked")
	}
	if _, ok := report.Checks["embedding"]; ok {
		t.Error("unconfigured embedding must not be checked")
	}
	if report.Checks["mesh"] != CheckOK {
		t.Errorf("mesh check = %q", report.Checks["mesh"])
	}
}
