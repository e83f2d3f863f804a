package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
)

// RegisterSourceRequest carries the caller-supplied fields of a registration.
type RegisterSourceRequest struct {
	SourceType models.SourceType `json:"source_type"`
	Path       string            `json:"path"`
	Name       string            `json:"name"`
	Languages  []string          `json:"languages"`
}

// RegistryService manages the source registry: registration, listing,
// enablement, and deletion including stored-artifact cleanup.
type RegistryService interface {
	Register(ctx context.Context, tenant string, req RegisterSourceRequest) (*models.CodeSource, error)
	List(ctx context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error)
	Get(ctx context.Context, sourceID string) (*models.CodeSource, error)
	SetEnabled(ctx context.Context, sourceID string, enabled bool) (*models.CodeSource, error)

	// Delete removes the source from the registry and deletes its stored
	// analysis artifacts. Published graph data is left in place until the
	// next publish for the same (tenant, source_id) replaces it.
	Delete(ctx context.Context, sourceID string) error

	// SeedFromConfig upsert-registers the repositories declared in the
	// analysis tenants configuration. Called once at startup.
	SeedFromConfig(ctx context.Context) error
}

type registryService struct {
	cfg     *config.Config
	sources repositories.SourceRepository
	store   artifacts.Store
	logger  *zap.Logger
}

// NewRegistryService creates a registry service over the source repository
// and artifact store.
func NewRegistryService(cfg *config.Config, sources repositories.SourceRepository, store artifacts.Store, logger *zap.Logger) RegistryService {
	return &registryService{
		cfg:     cfg,
		sources: sources,
		store:   store,
		logger:  logger,
	}
}

func (s *registryService) Register(ctx context.Context, tenant string, req RegisterSourceRequest) (*models.CodeSource, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if !req.SourceType.Valid() {
		return nil, fmt.Errorf("unknown source type: %q", req.SourceType)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if len(req.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}

	src := &models.CodeSource{
		Tenant:     tenant,
		SourceType: req.SourceType,
		Path:       req.Path,
		Name:       req.Name,
		Languages:  req.Languages,
		Enabled:    true,
	}
	if err := s.sources.Register(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to register source: %w", err)
	}

	s.logger.Info("source registered",
		zap.String("tenant", tenant),
		zap.String("source_id", src.SourceID),
		zap.String("source_type", string(src.SourceType)))
	return s.sources.Get(ctx, src.SourceID)
}

func (s *registryService) List(ctx context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error) {
	return s.sources.List(ctx, filter)
}

func (s *registryService) Get(ctx context.Context, sourceID string) (*models.CodeSource, error) {
	return s.sources.Get(ctx, sourceID)
}

func (s *registryService) SetEnabled(ctx context.Context, sourceID string, enabled bool) (*models.CodeSource, error) {
	if err := s.sources.SetEnabled(ctx, sourceID, enabled); err != nil {
		return nil, err
	}
	return s.sources.Get(ctx, sourceID)
}

func (s *registryService) Delete(ctx context.Context, sourceID string) error {
	src, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, src.Tenant, src.SourceID); err != nil {
		// Registry deletion proceeds; orphaned archives are harmless and
		// can be cleaned up on a later delete.
		s.logger.Warn("failed to delete stored artifacts",
			zap.String("source_id", sourceID),
			zap.Error(err))
	}

	if err := s.sources.Delete(ctx, sourceID); err != nil {
		return err
	}

	s.logger.Info("source deleted",
		zap.String("tenant", src.Tenant),
		zap.String("source_id", sourceID))
	return nil
}

// seedLanguages is what declaratively registered repositories are analyzed
// as when the declaration carries no language information.
var seedLanguages = []string{"python"}

func (s *registryService) SeedFromConfig(ctx context.Context) error {
	for tenant, repos := range s.cfg.AnalysisTenants {
		for _, repo := range repos {
			src := &models.CodeSource{
				Tenant:     tenant,
				SourceType: models.SourceTypeHostedRepository,
				Path:       repo,
				Languages:  seedLanguages,
				Enabled:    true,
			}
			if err := s.sources.Register(ctx, src); err != nil {
				return fmt.Errorf("failed to seed source %s for tenant %s: %w", repo, tenant, err)
			}
			s.logger.Info("seeded source from configuration",
				zap.String("tenant", tenant),
				zap.String("source_id", src.SourceID))
		}
	}
	return nil
}

var _ RegistryService = (*registryService)(nil)
