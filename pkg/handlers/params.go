package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseTenant extracts and validates the tenant from the request path.
// Returns the tenant and true on success, or "" and false after writing an
// error response.
// Expects path parameter: tenant
func ParseTenant(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parsePathParam(w, r, "tenant", "invalid_tenant", "Tenant is required", logger)
}

// ParseSourceID extracts and validates the source ID from the request path.
// Returns the source ID and true on success, or "" and false after writing
// an error response.
// Expects path parameter: sid
func ParseSourceID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parsePathParam(w, r, "sid", "invalid_source_id", "Source ID is required", logger)
}

// ParseJobID extracts and validates the job ID from the request path.
// Expects path parameter: jid
func ParseJobID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parsePathParam(w, r, "jid", "invalid_job_id", "Job ID is required", logger)
}

// ParseLimit reads an optional positive "limit" query parameter, returning
// defaultLimit when absent. Returns 0 and false after writing an error
// response when the parameter is present but not a positive integer.
func ParseLimit(w http.ResponseWriter, r *http.Request, defaultLimit int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be a positive integer"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return limit, true
}

// parsePathParam is the internal helper that does the actual extraction.
func parsePathParam(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (string, bool) {
	value := r.PathValue(pathParam)
	if value == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return value, true
}
