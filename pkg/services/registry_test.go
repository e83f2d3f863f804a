package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
)

func newTestRegistry(cfg *config.Config, sources ...*models.CodeSource) (RegistryService, *fakeSourceRepo, *fakeArtifactStore) {
	if cfg == nil {
		cfg = &config.Config{AnalysisTenants: map[string][]string{}}
	}
	repo := newFakeSourceRepo(sources...)
	store := newFakeArtifactStore()
	return NewRegistryService(cfg, repo, store, zap.NewNop()), repo, store
}

func TestRegistryService_Register(t *testing.T) {
	svc, _, _ := newTestRegistry(nil)

	src, err := svc.Register(context.Background(), "acme", RegisterSourceRequest{
		SourceType: models.SourceTypeHostedRepository,
		Path:       "org/svc",
		Languages:  []string{"python"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeriveSourceID("acme", models.SourceTypeHostedRepository, "org/svc"), src.SourceID)
	assert.True(t, src.Enabled)
}

func TestRegistryService_Register_Validation(t *testing.T) {
	svc, _, _ := newTestRegistry(nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", RegisterSourceRequest{
		SourceType: models.SourceTypeHostedRepository, Path: "org/svc", Languages: []string{"python"},
	})
	assert.Error(t, err)

	_, err = svc.Register(ctx, "acme", RegisterSourceRequest{
		SourceType: "svn", Path: "org/svc", Languages: []string{"python"},
	})
	assert.Error(t, err)

	_, err = svc.Register(ctx, "acme", RegisterSourceRequest{
		SourceType: models.SourceTypeHostedRepository, Languages: []string{"python"},
	})
	assert.Error(t, err)

	_, err = svc.Register(ctx, "acme", RegisterSourceRequest{
		SourceType: models.SourceTypeHostedRepository, Path: "org/svc",
	})
	assert.Error(t, err)
}

func TestRegistryService_SetEnabled(t *testing.T) {
	src := testOrchSource("src-a", true)
	svc, _, _ := newTestRegistry(nil, src)

	updated, err := svc.SetEnabled(context.Background(), "src-a", false)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	_, err = svc.SetEnabled(context.Background(), "missing", true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRegistryService_Delete_RemovesArtifacts(t *testing.T) {
	src := testOrchSource("src-a", true)
	svc, repo, store := newTestRegistry(nil, src)
	ref := artifacts.Ref{Tenant: "acme", SourceID: "src-a", Language: "python", Revision: "rev1"}
	store.existing[ref.Key()] = true

	require.NoError(t, svc.Delete(context.Background(), "src-a"))

	_, err := repo.Get(context.Background(), "src-a")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRegistryService_Delete_NotFound(t *testing.T) {
	svc, _, _ := newTestRegistry(nil)
	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRegistryService_SeedFromConfig(t *testing.T) {
	cfg := &config.Config{
		AnalysisTenants: map[string][]string{
			"acme":  {"org/svc-a", "org/svc-b"},
			"globex": nil,
		},
	}
	svc, repo, _ := newTestRegistry(cfg)

	require.NoError(t, svc.SeedFromConfig(context.Background()))

	acme, err := repo.List(context.Background(), repositories.SourceFilter{Tenant: "acme"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	globex, err := repo.List(context.Background(), repositories.SourceFilter{Tenant: "globex"})
	require.NoError(t, err)
	assert.Empty(t, globex)
}
