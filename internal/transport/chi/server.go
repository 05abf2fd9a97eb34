// Package chi exposes the engine's thin HTTP surface: the search endpoint
// used by the surrounding service layer, health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/domain/document"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
	"github.com/assetgrid/searchsync/internal/domain/search/result"
	"github.com/assetgrid/searchsync/internal/logger"
	"github.com/assetgrid/searchsync/internal/metrics"
	"github.com/assetgrid/searchsync/internal/syncq"
)

// Searcher executes assembled searches.
type Searcher interface {
	Search(ctx context.Context, tenant, env string, req *request.Request) (*result.Page, error)
}

// Enqueuer accepts document mutation notifications.
type Enqueuer interface {
	Enqueue(docID string, doc *document.Document, action syncq.Action, tenant, env string)
}

// AttributeSaver reconciles attribute-definition changes with the index.
type AttributeSaver interface {
	Save(ctx context.Context, tenant, env string, all []attribute.Definition, changed attribute.Definition) error
}

// Server routes engine HTTP traffic.
type Server struct {
	search Searcher
	queue  Enqueuer
	attrs  AttributeSaver
	log    *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(search Searcher, queue Enqueuer, attrs AttributeSaver, log *zap.Logger) *Server {
	return &Server{search: search, queue: queue, attrs: attrs, log: log}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/{tenant}/{env}/search", s.handleSearch)
	r.Put("/v1/{tenant}/{env}/documents/{id}", s.handleUpsert)
	r.Delete("/v1/{tenant}/{env}/documents/{id}", s.handleDelete)
	r.Put("/v1/{tenant}/{env}/attributes/{name}", s.handleAttributeSave)

	return r
}

// handleUpsert buffers a full-document upsert. 202: the write-behind queue
// flushes asynchronously after the debounce window.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var doc document.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document body: "+err.Error())
		return
	}
	doc.ID = chi.URLParam(r, "id")

	s.queue.Enqueue(doc.ID, &doc, syncq.ActionUpsert, chi.URLParam(r, "tenant"), chi.URLParam(r, "env"))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.queue.Enqueue(chi.URLParam(r, "id"), nil, syncq.ActionDelete, chi.URLParam(r, "tenant"), chi.URLParam(r, "env"))
	w.WriteHeader(http.StatusAccepted)
}

// handleAttributeSave applies one changed definition. The body carries the
// tenant's complete definition set including the change; a triggered reindex
// rebuilds the whole mapping from it. Synchronous on purpose: the caller's
// save transaction must fail when the index cannot follow.
func (s *Server) handleAttributeSave(w http.ResponseWriter, r *http.Request) {
	var all []attribute.Definition
	if err := json.NewDecoder(r.Body).Decode(&all); err != nil {
		writeError(w, http.StatusBadRequest, "invalid definitions body: "+err.Error())
		return
	}

	name := chi.URLParam(r, "name")
	changed, ok := attribute.ByName(all)[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "changed attribute "+name+" missing from definition set")
		return
	}

	tenant := chi.URLParam(r, "tenant")
	env := chi.URLParam(r, "env")
	if err := s.attrs.Save(r.Context(), tenant, env, all, changed); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAttribute):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrReindexPending):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrMissingConnection), errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.log.Error("attribute save failed",
				zap.String("tenant", tenant), zap.String("env", env),
				zap.String("attribute", name), zap.Error(err))
			writeError(w, http.StatusBadGateway, "index update failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	env := chi.URLParam(r, "env")

	var req request.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.ContextWithLogger(r.Context(), s.log)
	page, err := s.search.Search(ctx, tenant, env, &req)
	if err != nil {
		s.handleSearchError(w, tenant, env, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSearchError(w http.ResponseWriter, tenant, env string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidSort),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrInvalidAttribute):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMissingConnection), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("search failed",
			zap.String("tenant", tenant), zap.String("env", env), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search backend error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
