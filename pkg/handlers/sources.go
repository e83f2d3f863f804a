package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services"
)

// SourcesHandler handles source registry HTTP requests.
type SourcesHandler struct {
	registry services.RegistryService
	logger   *zap.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(registry services.RegistryService, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the sources handler's routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tenants/{tenant}/sources", h.Register)
	mux.HandleFunc("GET /api/tenants/{tenant}/sources", h.List)
	mux.HandleFunc("GET /api/sources/{sid}", h.Get)
	mux.HandleFunc("DELETE /api/sources/{sid}", h.Delete)
	mux.HandleFunc("PATCH /api/sources/{sid}/enabled", h.SetEnabled)
}

// Register handles POST /api/tenants/{tenant}/sources.
// Registration is idempotent: re-registering the same (tenant, type, path)
// updates the existing entry and returns the same source_id.
func (h *SourcesHandler) Register(w http.ResponseWriter, r *http.Request) {
	tenant, ok := ParseTenant(w, r, h.logger)
	if !ok {
		return
	}

	var req services.RegisterSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	src, err := h.registry.Register(r.Context(), tenant, req)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_source", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, src); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/tenants/{tenant}/sources.
// Supports source_type and enabled_only query parameters.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := ParseTenant(w, r, h.logger)
	if !ok {
		return
	}

	filter := repositories.SourceFilter{
		Tenant:      tenant,
		SourceType:  models.SourceType(r.URL.Query().Get("source_type")),
		EnabledOnly: r.URL.Query().Get("enabled_only") == "true",
	}

	sources, err := h.registry.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list sources", zap.String("tenant", tenant), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list sources"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if sources == nil {
		sources = []*models.CodeSource{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"sources": sources}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/sources/{sid}.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	src, err := h.registry.Get(r.Context(), sourceID)
	if err != nil {
		h.writeSourceError(w, sourceID, "get", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, src); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/sources/{sid}.
// Removes the registry entry and the source's stored analysis artifacts.
func (h *SourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), sourceID); err != nil {
		h.writeSourceError(w, sourceID, "delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetEnabled handles PATCH /api/sources/{sid}/enabled.
func (h *SourcesHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Body must contain an enabled boolean"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	src, err := h.registry.SetEnabled(r.Context(), sourceID, *req.Enabled)
	if err != nil {
		h.writeSourceError(w, sourceID, "update", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, src); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SourcesHandler) writeSourceError(w http.ResponseWriter, sourceID, op string, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Source not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	h.logger.Error("Source operation failed",
		zap.String("source_id", sourceID),
		zap.String("operation", op),
		zap.Error(err))
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to "+op+" source"); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
