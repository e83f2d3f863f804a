package handlers

import (
	"context"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/graph"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services"
)

// mockRegistryService implements services.RegistryService for handler tests.
type mockRegistryService struct {
	registerFunc   func(ctx context.Context, tenant string, req services.RegisterSourceRequest) (*models.CodeSource, error)
	listFunc       func(ctx context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error)
	getFunc        func(ctx context.Context, sourceID string) (*models.CodeSource, error)
	setEnabledFunc func(ctx context.Context, sourceID string, enabled bool) (*models.CodeSource, error)
	deleteFunc     func(ctx context.Context, sourceID string) error
}

func (m *mockRegistryService) Register(ctx context.Context, tenant string, req services.RegisterSourceRequest) (*models.CodeSource, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, tenant, req)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRegistryService) List(ctx context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockRegistryService) Get(ctx context.Context, sourceID string) (*models.CodeSource, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, sourceID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRegistryService) SetEnabled(ctx context.Context, sourceID string, enabled bool) (*models.CodeSource, error) {
	if m.setEnabledFunc != nil {
		return m.setEnabledFunc(ctx, sourceID, enabled)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRegistryService) Delete(ctx context.Context, sourceID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, sourceID)
	}
	return apperrors.ErrNotFound
}

func (m *mockRegistryService) SeedFromConfig(context.Context) error { return nil }

// mockOrchestrator implements services.Orchestrator for handler tests.
type mockOrchestrator struct {
	triggerFunc func(ctx context.Context, tenant, sourceID string) (*models.AnalysisJob, error)
}

func (m *mockOrchestrator) TriggerTenant(ctx context.Context, tenant, sourceID string) (*models.AnalysisJob, error) {
	return m.triggerFunc(ctx, tenant, sourceID)
}

// mockJobTracker implements services.JobTracker for handler tests.
type mockJobTracker struct {
	getFunc func(ctx context.Context, jobID string) (*models.AnalysisJob, error)
}

func (m *mockJobTracker) CreateJob(tenant string, sourceIDs []string) *models.AnalysisJob {
	return &models.AnalysisJob{Tenant: tenant}
}

func (m *mockJobTracker) UpdateSource(string, models.SourceOutcome) {}

func (m *mockJobTracker) CompleteJob(string) {}

func (m *mockJobTracker) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, jobID)
	}
	return nil, apperrors.ErrNotFound
}

// mockRetriever implements graph.Retriever for handler tests.
type mockRetriever struct {
	findFunc func(ctx context.Context, tenant, query string, limit int) ([]graph.ContextFragment, error)
}

func (m *mockRetriever) FindRelated(ctx context.Context, tenant, query string, limit int) ([]graph.ContextFragment, error) {
	return m.findFunc(ctx, tenant, query, limit)
}
