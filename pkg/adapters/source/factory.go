package source

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

type adapterFactory struct {
	git        Adapter
	filesystem Adapter
}

// NewAdapterFactory returns a factory covering all known source types.
func NewAdapterFactory(cfg *config.AnalysisConfig, logger *zap.Logger) AdapterFactory {
	return &adapterFactory{
		git:        NewGitAdapter(cfg.GitRemoteBase, cfg.WorkDir, logger),
		filesystem: NewFilesystemAdapter(logger),
	}
}

func (f *adapterFactory) ForSource(src *models.CodeSource) (Adapter, error) {
	switch src.SourceType {
	case models.SourceTypeHostedRepository:
		return f.git, nil
	case models.SourceTypeLocalFilesystem:
		return f.filesystem, nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", src.SourceType)
	}
}

var _ AdapterFactory = (*adapterFactory)(nil)
