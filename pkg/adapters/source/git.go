package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/logging"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// gitAdapter handles hosted repositories addressed by project path. Remote
// URLs are built from the configured base, e.g. "git@github.com:" + path.
type gitAdapter struct {
	remoteBase string
	workDir    string
	logger     *zap.Logger
}

// NewGitAdapter creates an adapter for hosted git repositories. Checkouts are
// created under workDir and removed by the cleanup function Materialize
// returns.
func NewGitAdapter(remoteBase, workDir string, logger *zap.Logger) Adapter {
	return &gitAdapter{
		remoteBase: remoteBase,
		workDir:    workDir,
		logger:     logger,
	}
}

func (a *gitAdapter) remoteURL(src *models.CodeSource) string {
	return a.remoteBase + src.Path
}

// CurrentRevision resolves the remote HEAD with ls-remote, without cloning.
func (a *gitAdapter) CurrentRevision(ctx context.Context, src *models.CodeSource) (string, error) {
	remote := a.remoteURL(src)

	cmd := exec.CommandContext(ctx, "git", "ls-remote", remote, "HEAD")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		a.logger.Warn("git ls-remote failed",
			zap.String("source_id", src.SourceID),
			zap.String("remote", logging.SanitizeConnectionString(remote)),
			zap.String("stderr", logging.TruncateString(stderr.String(), 500)))
		return "", fmt.Errorf("%w: ls-remote %s: %v", apperrors.ErrRevisionUnavailable, src.Path, err)
	}

	// Output is "<sha>\tHEAD".
	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: remote %s has no HEAD", apperrors.ErrRevisionUnavailable, src.Path)
	}
	return fields[0], nil
}

// Materialize clones the repository at depth 1 into a fresh directory under
// the adapter's work dir.
func (a *gitAdapter) Materialize(ctx context.Context, src *models.CodeSource) (string, string, func(), error) {
	if err := os.MkdirAll(a.workDir, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	dir, err := os.MkdirTemp(a.workDir, "checkout-"+src.SourceID+"-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create checkout dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	remote := a.remoteURL(src)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", remote, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cleanup()
		a.logger.Warn("git clone failed",
			zap.String("source_id", src.SourceID),
			zap.String("stderr", logging.TruncateString(stderr.String(), 500)))
		return "", "", nil, fmt.Errorf("%w: clone %s: %v", apperrors.ErrRevisionUnavailable, src.Path, err)
	}

	revision, err := headRevision(ctx, dir)
	if err != nil {
		cleanup()
		return "", "", nil, err
	}

	return dir, revision, cleanup, nil
}

// headRevision returns the HEAD commit of the checkout at dir.
func headRevision(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: rev-parse in %s: %v", apperrors.ErrRevisionUnavailable, dir, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

var _ Adapter = (*gitAdapter)(nil)
