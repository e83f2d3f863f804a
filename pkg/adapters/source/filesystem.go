package source

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// filesystemAdapter handles checkouts already present on local disk. The
// directory itself is the working copy, so Materialize never copies anything
// and its cleanup is a no-op.
type filesystemAdapter struct {
	logger *zap.Logger
}

// NewFilesystemAdapter creates an adapter for local filesystem sources.
func NewFilesystemAdapter(logger *zap.Logger) Adapter {
	return &filesystemAdapter{logger: logger}
}

// CurrentRevision reads HEAD of the git checkout at the source's path.
func (a *filesystemAdapter) CurrentRevision(ctx context.Context, src *models.CodeSource) (string, error) {
	if _, err := os.Stat(src.Path); err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperrors.ErrRevisionUnavailable, src.Path, err)
	}
	return headRevision(ctx, src.Path)
}

// Materialize returns the source directory in place.
func (a *filesystemAdapter) Materialize(ctx context.Context, src *models.CodeSource) (string, string, func(), error) {
	revision, err := a.CurrentRevision(ctx, src)
	if err != nil {
		return "", "", nil, err
	}
	return src.Path, revision, func() {}, nil
}

var _ Adapter = (*filesystemAdapter)(nil)
