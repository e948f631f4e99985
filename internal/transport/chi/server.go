// Package chi exposes the REST API over the go-chi router.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/grantmesh/grantmesh/internal/domain"
	"github.com/grantmesh/grantmesh/internal/domain/candidate"
	"github.com/grantmesh/grantmesh/internal/domain/grant"
	domnode "github.com/grantmesh/grantmesh/internal/domain/node"
	"github.com/grantmesh/grantmesh/internal/domain/query"
	healthuc "github.com/grantmesh/grantmesh/internal/usecase/health"
	ingestuc "github.com/grantmesh/grantmesh/internal/usecase/ingest"
	routeruc "github.com/grantmesh/grantmesh/internal/usecase/router"
)

const maxBatchSize = 500

// Error response codes.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeNotFound               = "not_found"
	codeEmbedderUnavailable    = "embedder_unavailable"
	codeEmbeddingProviderError = "embedding_provider_error"
	codeInternalError          = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	router        *routeruc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	router *routeruc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router: router,
		ingest: ingest,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbedderUnavailable, http.StatusServiceUnavailable, codeEmbedderUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
	}
	return s
}

// Routes mounts every handler on a chi router. Middlewares are applied by
// the caller so tests can exercise handlers bare.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/query", s.Query)
	r.Post("/api/grants", s.IngestGrant)
	r.Post("/api/grants/batch", s.IngestGrantBatch)
	r.Get("/api/nodes", s.ListNodes)
	r.Get("/api/nodes/{node}", s.GetNode)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type queryRequest struct {
	Query   string              `json:"query"`
	Limit   int                 `json:"limit,omitempty"`
	Filters map[string][]string `json:"filters,omitempty"`
	Targets []string            `json:"targets,omitempty"`
}

type resultItem struct {
	ID        string            `json:"id"`
	Node      string            `json:"node"`
	Relevance float64           `json:"relevance"`
	Semantic  float64           `json:"semantic"`
	Lexical   float64           `json:"lexical"`
	Text      string            `json:"text,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type queryResponse struct {
	Query        string       `json:"query"`
	Results      []resultItem `json:"results"`
	Total        int          `json:"total"`
	Nodes        []string     `json:"nodes,omitempty"`
	Degraded     []string     `json:"degraded,omitempty"`
	CacheHit     bool         `json:"cache_hit"`
	TotalFailure bool         `json:"total_failure,omitempty"`
	LatencyMs    int64        `json:"latency_ms"`
	Advisory     string       `json:"advisory,omitempty"`
}

// Query handles POST /api/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := query.New(req.Query, req.Limit, req.Filters, req.Targets)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	agg, err := s.router.Route(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, aggregateToResponse(agg))
}

type grantRequest struct {
	ID             string            `json:"id,omitempty"`
	Title          string            `json:"title"`
	Provider       string            `json:"provider,omitempty"`
	Silo           string            `json:"silo,omitempty"`
	FundingBody    string            `json:"funding_body,omitempty"`
	AmountMin      float64           `json:"amount_min,omitempty"`
	AmountMax      float64           `json:"amount_max,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Deadline       string            `json:"deadline,omitempty"`
	Sectors        []string          `json:"sectors,omitempty"`
	Description    string            `json:"description,omitempty"`
	ApplicationURL string            `json:"application_url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// IngestGrant handles POST /api/grants.
func (s *Server) IngestGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	g, err := grantFromRequest(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if err := s.ingest.Ingest(r.Context(), g); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": g.ID()})
}

type grantBatchRequest struct {
	Grants []grantRequest `json:"grants"`
}

// IngestGrantBatch handles POST /api/grants/batch.
func (s *Server) IngestGrantBatch(w http.ResponseWriter, r *http.Request) {
	var req grantBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Grants) == 0 || len(req.Grants) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("grants count must be between 1 and %d", maxBatchSize))
		return
	}

	grants := make([]grant.Grant, 0, len(req.Grants))
	for i, item := range req.Grants {
		g, err := grantFromRequest(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed,
				fmt.Sprintf("grant %d: %s", i, safeDomainMessage(err)))
			return
		}
		grants = append(grants, g)
	}

	indexed, err := s.ingest.IngestBatch(r.Context(), grants)
	if err != nil && indexed == 0 {
		s.handleDomainError(w, err)
		return
	}

	resp := map[string]any{
		"indexed": indexed,
		"failed":  len(grants) - indexed,
	}
	writeJSON(w, http.StatusOK, resp)
}

type nodeResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Domain       string   `json:"domain"`
	Silo         string   `json:"silo,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Indexed      int      `json:"indexed"`
	Queries      uint64   `json:"queries"`
}

// ListNodes handles GET /api/nodes.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	statuses := s.router.Statuses(r.Context())
	items := make([]nodeResponse, len(statuses))
	for i, st := range statuses {
		items[i] = statusToResponse(st)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": items,
		"total": len(items),
	})
}

// GetNode handles GET /api/nodes/{node}.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	st, err := s.router.Status(r.Context(), chi.URLParam(r, "node"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(st))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func aggregateToResponse(agg routeruc.Aggregate) queryResponse {
	items := make([]resultItem, len(agg.Candidates))
	for i := range agg.Candidates {
		items[i] = candidateToResponse(&agg.Candidates[i])
	}
	return queryResponse{
		Query:        agg.Query,
		Results:      items,
		Total:        agg.TotalResults,
		Nodes:        agg.Nodes,
		Degraded:     agg.Degraded,
		CacheHit:     agg.CacheHit,
		TotalFailure: agg.TotalFailure,
		LatencyMs:    agg.Latency.Milliseconds(),
		Advisory:     agg.Advisory,
	}
}

func candidateToResponse(c *candidate.Candidate) resultItem {
	return resultItem{
		ID:        c.ID(),
		Node:      c.Node(),
		Relevance: c.RelevanceScore(),
		Semantic:  c.SemanticScore(),
		Lexical:   c.LexicalScore(),
		Text:      c.Text(),
		Metadata:  c.Metadata(),
	}
}

func statusToResponse(st domnode.Status) nodeResponse {
	return nodeResponse{
		ID:           st.Registration.ID(),
		Name:         st.Registration.Name(),
		Domain:       st.Registration.Domain(),
		Silo:         st.Registration.Silo(),
		Capabilities: st.Registration.Capabilities(),
		Indexed:      st.Indexed,
		Queries:      st.Queries,
	}
}

func grantFromRequest(req grantRequest) (grant.Grant, error) {
	g, err := grant.New(grant.Attrs{
		ID:             req.ID,
		Title:          req.Title,
		Provider:       req.Provider,
		Silo:           req.Silo,
		FundingBody:    req.FundingBody,
		AmountMin:      req.AmountMin,
		AmountMax:      req.AmountMax,
		Currency:       req.Currency,
		Deadline:       req.Deadline,
		Sectors:        req.Sectors,
		Description:    req.Description,
		ApplicationURL: req.ApplicationURL,
		Extra:          req.Metadata,
	})
	if err != nil {
		return grant.Grant{}, fmt.Errorf("build grant: %w", err)
	}
	return g, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		domain.ErrNotFound,
		domain.ErrEmbedderUnavailable,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
