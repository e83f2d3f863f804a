package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services"
)

func newSourcesMux(registry services.RegistryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewSourcesHandler(registry, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestSourcesHandler_Register(t *testing.T) {
	registry := &mockRegistryService{
		registerFunc: func(_ context.Context, tenant string, req services.RegisterSourceRequest) (*models.CodeSource, error) {
			return &models.CodeSource{
				SourceID:   models.DeriveSourceID(tenant, req.SourceType, req.Path),
				Tenant:     tenant,
				SourceType: req.SourceType,
				Path:       req.Path,
				Languages:  req.Languages,
				Enabled:    true,
			}, nil
		},
	}
	mux := newSourcesMux(registry)

	body := `{"source_type":"hosted_repository","path":"org/svc","languages":["python"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/acme/sources", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var src models.CodeSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &src))
	assert.Equal(t, "acme", src.Tenant)
	assert.NotEmpty(t, src.SourceID)
}

func TestSourcesHandler_Register_InvalidBody(t *testing.T) {
	mux := newSourcesMux(&mockRegistryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/acme/sources", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourcesHandler_List_PassesFilter(t *testing.T) {
	var gotFilter repositories.SourceFilter
	registry := &mockRegistryService{
		listFunc: func(_ context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	mux := newSourcesMux(registry)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/acme/sources?source_type=hosted_repository&enabled_only=true", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", gotFilter.Tenant)
	assert.Equal(t, models.SourceTypeHostedRepository, gotFilter.SourceType)
	assert.True(t, gotFilter.EnabledOnly)

	var resp struct {
		Sources []*models.CodeSource `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Sources)
}

func TestSourcesHandler_Get_NotFound(t *testing.T) {
	mux := newSourcesMux(&mockRegistryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/sources/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourcesHandler_Delete(t *testing.T) {
	deleted := ""
	registry := &mockRegistryService{
		deleteFunc: func(_ context.Context, sourceID string) error {
			deleted = sourceID
			return nil
		},
	}
	mux := newSourcesMux(registry)

	req := httptest.NewRequest(http.MethodDelete, "/api/sources/src-a", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "src-a", deleted)
}

func TestSourcesHandler_SetEnabled(t *testing.T) {
	registry := &mockRegistryService{
		setEnabledFunc: func(_ context.Context, sourceID string, enabled bool) (*models.CodeSource, error) {
			return &models.CodeSource{SourceID: sourceID, Enabled: enabled}, nil
		},
	}
	mux := newSourcesMux(registry)

	req := httptest.NewRequest(http.MethodPatch, "/api/sources/src-a/enabled", strings.NewReader(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var src models.CodeSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &src))
	assert.False(t, src.Enabled)
}

func TestSourcesHandler_SetEnabled_MissingField(t *testing.T) {
	mux := newSourcesMux(&mockRegistryService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/sources/src-a/enabled", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourcesHandler_SetEnabled_NotFound(t *testing.T) {
	registry := &mockRegistryService{
		setEnabledFunc: func(context.Context, string, bool) (*models.CodeSource, error) {
			return nil, apperrors.ErrNotFound
		},
	}
	mux := newSourcesMux(registry)

	req := httptest.NewRequest(http.MethodPatch, "/api/sources/missing/enabled", strings.NewReader(`{"enabled":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
