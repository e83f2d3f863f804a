package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/graph"
)

const defaultRelatedLimit = 10

// GraphHandler handles graph retrieval HTTP requests.
type GraphHandler struct {
	retriever graph.Retriever
	logger    *zap.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(retriever graph.Retriever, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{retriever: retriever, logger: logger}
}

// RegisterRoutes registers the graph handler's routes on the given mux.
func (h *GraphHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tenants/{tenant}/graph/related", h.FindRelated)
}

// FindRelated handles GET /api/tenants/{tenant}/graph/related?q=...&limit=...
// An empty result is a 404 with code no_results; an unreachable graph store
// is a 503. The two are never conflated.
func (h *GraphHandler) FindRelated(w http.ResponseWriter, r *http.Request) {
	tenant, ok := ParseTenant(w, r, h.logger)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_query", "Query parameter q is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit, ok := ParseLimit(w, r, defaultRelatedLimit, h.logger)
	if !ok {
		return
	}

	fragments, err := h.retriever.FindRelated(r.Context(), tenant, query, limit)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNoResults):
			if err := ErrorResponse(w, http.StatusNotFound, "no_results", "No matching graph nodes"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrGraphUnavailable):
			if err := ErrorResponse(w, http.StatusServiceUnavailable, "graph_unavailable", "Graph store is unavailable"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Graph retrieval failed",
				zap.String("tenant", tenant),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Graph retrieval failed"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"fragments": fragments}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
