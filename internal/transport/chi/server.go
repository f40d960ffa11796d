// Package chi exposes the engine over HTTP: JSON endpoints for indexing and
// search, an SSE endpoint for streaming chat, and the health and metrics
// surfaces.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	chatuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/chat"
	healthuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/health"
	indexinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/indexing"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest            = "bad_request"
	codeValidationFailed      = "validation_failed"
	codeDocumentNotFound      = "document_not_found"
	codeVectorDimMismatch     = "vector_dim_mismatch"
	codeIndexUnavailable      = "index_unavailable"
	codeEmbeddingProviderErr  = "embedding_provider_error"
	codeCompletionProviderErr = "completion_provider_error"
	codeInternalError         = "internal_error"
)

// IndexingService ingests and removes documents.
type IndexingService interface {
	IndexDocument(ctx context.Context, req indexinguc.Request) (int, error)
	RemoveDocument(ctx context.Context, documentID string) (bool, error)
}

// RetrievalService answers similarity queries.
type RetrievalService interface {
	Retrieve(ctx context.Context, query, projectID string, topK int) ([]domain.RetrievalResult, error)
}

// ChatService runs chat completions.
type ChatService interface {
	Complete(ctx context.Context, req chatuc.Request) (domain.ChatResponse, error)
	CompleteStream(ctx context.Context, req chatuc.Request) <-chan domain.StreamEvent
}

// HealthService reports engine readiness.
type HealthService interface {
	Check(ctx context.Context) healthuc.Status
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	indexing      IndexingService
	retrieval     RetrievalService
	chat          ChatService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	indexing IndexingService,
	retrieval RetrievalService,
	chat ChatService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		indexing:  indexing,
		retrieval: retrieval,
		chat:      chat,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrIndexClosed, http.StatusServiceUnavailable, codeIndexUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr),
		sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, codeCompletionProviderErr),
	}
	return s
}

// Routes registers all endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.indexDocument)
		r.Delete("/documents/{id}", s.removeDocument)
		r.Post("/search", s.search)
		r.Post("/chat/completions", s.chatCompletion)
		r.Post("/chat/completions/stream", s.chatCompletionStream)
	})
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type indexDocumentRequest struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	ProjectID    string            `json:"project_id,omitempty"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type indexDocumentResponse struct {
	Success bool `json:"success"`
	Chunks  int  `json:"chunks"`
}

// indexDocument handles POST /v1/documents.
func (s *Server) indexDocument(w http.ResponseWriter, r *http.Request) {
	var req indexDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "document_id is required")
		return
	}

	chunks, err := s.indexing.IndexDocument(r.Context(), indexinguc.Request{
		DocumentID:   req.DocumentID,
		DocumentName: req.DocumentName,
		ProjectID:    req.ProjectID,
		Text:         req.Text,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexDocumentResponse{Success: true, Chunks: chunks})
}

// removeDocument handles DELETE /v1/documents/{id}.
func (s *Server) removeDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := s.indexing.RemoveDocument(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, codeDocumentNotFound, "document not indexed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"project_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type searchResultItem struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	Excerpt      string            `json:"excerpt"`
	Score        float64           `json:"score"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Items []searchResultItem `json:"items"`
	Total int                `json:"total"`
}

// search handles POST /v1/search.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.retrieval.Retrieve(r.Context(), req.Query, req.ProjectID, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i, res := range results {
		items[i] = searchResultItem{
			DocumentID:   res.DocumentID,
			DocumentName: res.DocumentName,
			Excerpt:      res.Excerpt,
			Score:        res.Score,
			Metadata:     res.Metadata,
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

type chatRequest struct {
	Messages       []domain.ConversationTurn `json:"messages"`
	ProjectID      string                    `json:"project_id,omitempty"`
	ProjectContext string                    `json:"project_context,omitempty"`
}

func (c chatRequest) toUsecase() chatuc.Request {
	return chatuc.Request{
		History:        c.Messages,
		ProjectID:      c.ProjectID,
		ProjectContext: c.ProjectContext,
	}
}

// chatCompletion handles POST /v1/chat/completions.
func (s *Server) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "messages must not be empty")
		return
	}

	resp, err := s.chat.Complete(r.Context(), req.toUsecase())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// chatCompletionStream handles POST /v1/chat/completions/stream. Events go
// out as SSE data frames, one JSON object per frame, terminated by a
// literal [DONE] frame.
func (s *Server) chatCompletionStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "messages must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable nginx response buffering, token latency matters here.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for ev := range s.chat.CompleteStream(r.Context(), req.toUsecase()) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("Failed to marshal stream event", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// healthz handles GET /healthz.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	st := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if st.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrIndexClosed,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
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
