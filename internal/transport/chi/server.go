package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
	"github.com/uniqa-cloud/uniqa/internal/tools"
	healthuc "github.com/uniqa-cloud/uniqa/internal/usecase/health"
)

const maxBatchSize = 500

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeValidationFailed = "validation_failed"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API of the resolution service.
type Server struct {
	resolver      Resolver
	ingest        Ingestor
	sessions      SessionStore
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	resolver Resolver,
	ingest Ingestor,
	sessions SessionStore,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		resolver: resolver,
		ingest:   ingest,
		sessions: sessions,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	}
	return s
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.ResolveQuery)
		r.Post("/chunks", s.UpsertChunks)
		r.Delete("/sources/{sourceID}", s.DeleteSource)
		r.Post("/invalidate", s.Invalidate)
		r.Delete("/sessions/{sessionID}", s.DeleteSession)
	})

	return r
}

// resolveRequest is the POST /v1/resolve body. auth_token is the
// caller's student API token; without it, tools that need the student
// to be authenticated observe a login prompt instead of data.
type resolveRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	AuthToken string `json:"auth_token,omitempty"`
}

// ResolveQuery handles POST /v1/resolve. Degraded answers are still
// 200 responses; the client reads source and confidence to tell them
// apart from grounded ones.
func (s *Server) ResolveQuery(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := tools.ContextWithStudentToken(r.Context(), req.AuthToken)
	res, err := s.resolver.Resolve(ctx, req.Query, req.SessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// upsertChunksRequest is the POST /v1/chunks body.
type upsertChunksRequest struct {
	Chunks []domain.KnowledgeChunk `json:"chunks"`
}

type upsertChunksResponse struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// UpsertChunks handles POST /v1/chunks.
func (s *Server) UpsertChunks(w http.ResponseWriter, r *http.Request) {
	var req upsertChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Chunks) == 0 || len(req.Chunks) > maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"chunks count must be between 1 and 500")
		return
	}

	created, updated, err := s.ingest.UpsertChunks(r.Context(), req.Chunks)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, upsertChunksResponse{Created: created, Updated: updated})
}

type deleteSourceResponse struct {
	Removed int `json:"removed"`
}

// DeleteSource handles DELETE /v1/sources/{sourceID}.
func (s *Server) DeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	removed, err := s.ingest.DeleteSource(r.Context(), sourceID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteSourceResponse{Removed: removed})
}

// invalidateRequest is the POST /v1/invalidate body. Empty chunk_ids
// means a full cache clear.
type invalidateRequest struct {
	ChunkIDs []string `json:"chunk_ids"`
}

type invalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// Invalidate handles POST /v1/invalidate.
func (s *Server) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	n, err := s.ingest.Invalidate(r.Context(), req.ChunkIDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: n})
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessions.Clear(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	IndexBuiltAt string            `json:"index_built_at,omitempty"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	resp := healthResponse{
		Status: string(report.Status),
		Checks: checks,
	}
	if !report.IndexBuiltAt.IsZero() {
		resp.IndexBuiltAt = report.IndexBuiltAt.Format(time.RFC3339)
	}
	writeJSON(w, httpStatus, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNotFound,
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
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
