package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/services"
)

// TriggerResponse is the response to an analysis trigger.
type TriggerResponse struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// AnalysisHandler handles analysis trigger and job status HTTP requests.
type AnalysisHandler struct {
	orchestrator services.Orchestrator
	jobs         services.JobTracker
	logger       *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(orchestrator services.Orchestrator, jobs services.JobTracker, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		orchestrator: orchestrator,
		jobs:         jobs,
		logger:       logger,
	}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tenants/{tenant}/analyze", h.Trigger)
	mux.HandleFunc("GET /api/analysis/jobs/{jid}", h.JobStatus)
}

// Trigger handles POST /api/tenants/{tenant}/analyze.
// An optional source_id in the body restricts the run to one source.
// Returns status "rejected" when the tenant is not enabled for analysis.
func (h *AnalysisHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	tenant, ok := ParseTenant(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		SourceID string `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	job, err := h.orchestrator.TriggerTenant(r.Context(), tenant, req.SourceID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTenantNotEnabled):
			if err := WriteJSON(w, http.StatusForbidden, TriggerResponse{
				Status: "rejected",
				Reason: "static analysis is not enabled for this tenant",
			}); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrNotFound):
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to trigger analysis", zap.String("tenant", tenant), zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to trigger analysis"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	status := "running"
	if job.Status != models.JobRunning {
		// An empty or fully skipped tenant completes synchronously.
		status = "skipped"
	}
	if err := WriteJSON(w, http.StatusAccepted, TriggerResponse{
		JobID:  job.JobID,
		Status: status,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// JobStatus handles GET /api/analysis/jobs/{jid}.
// Returns per-source outcomes and the aggregate job status.
func (h *AnalysisHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := ParseJobID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Job not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get job status", zap.String("job_id", jobID), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get job status"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
