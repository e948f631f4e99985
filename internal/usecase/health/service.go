package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	mesh      MeshChecker
}

// New creates a Service. db and embedding can be nil when the component
// is not configured.
func New(db DBPinger, embedding EmbeddingChecker, mesh MeshChecker) *Service {
	return &Service{db: db, embedding: embedding, mesh: mesh}
}

// Check runs health checks against all configured components. An empty
// mesh is a total failure: nothing can answer queries.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.mesh != nil {
		if s.mesh.NodeCount() == 0 {
			checks["mesh"] = CheckError
		} else {
			checks["mesh"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["mesh"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
