package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/logging"
)

// Toolchain wraps the external analysis-database tool. Implementations run
// one tool invocation per call and respect the caller's context deadline.
type Toolchain interface {
	// Version probes the tool and returns its version string. An error means
	// the tool is not installed or not runnable.
	Version(ctx context.Context) (string, error)

	// CreateDatabase builds an analysis database for the source tree at
	// sourceRoot into dbDir.
	CreateDatabase(ctx context.Context, dbDir, sourceRoot, language string) error

	// BundleDatabase packs a built database directory into a single archive
	// file suitable for the artifact store.
	BundleDatabase(ctx context.Context, dbDir, outFile string) error

	// RunQuery executes one query file against a database directory and
	// returns the tool's JSON output.
	RunQuery(ctx context.Context, dbDir, queryFile string) ([]byte, error)
}

// codeqlToolchain shells out to the CodeQL CLI.
type codeqlToolchain struct {
	path   string
	logger *zap.Logger
}

// NewCodeQLToolchain creates a toolchain backed by the CodeQL executable at
// path ("codeql" resolves via PATH).
func NewCodeQLToolchain(path string, logger *zap.Logger) Toolchain {
	return &codeqlToolchain{
		path:   path,
		logger: logger,
	}
}

func (t *codeqlToolchain) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Distinguish the caller's deadline from a tool failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t.logger.Error("codeql command failed",
			zap.Strings("args", args[:min(len(args), 3)]),
			zap.String("stderr", logging.TruncateString(stderr.String(), 500)))
		return nil, fmt.Errorf("codeql %s: %w: %s",
			strings.Join(args[:min(len(args), 2)], " "), err,
			logging.TruncateString(stderr.String(), 200))
	}

	return stdout.Bytes(), nil
}

func (t *codeqlToolchain) Version(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "version", "--format", "terse")
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("codeql executable not found at %q: %w", t.path, err)
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *codeqlToolchain) CreateDatabase(ctx context.Context, dbDir, sourceRoot, language string) error {
	_, err := t.run(ctx,
		"database", "create", dbDir,
		"--language", language,
		"--source-root", sourceRoot,
		"--overwrite",
	)
	return err
}

func (t *codeqlToolchain) BundleDatabase(ctx context.Context, dbDir, outFile string) error {
	_, err := t.run(ctx,
		"database", "bundle", dbDir,
		"--output", outFile,
	)
	return err
}

func (t *codeqlToolchain) RunQuery(ctx context.Context, dbDir, queryFile string) ([]byte, error) {
	return t.run(ctx,
		"query", "run",
		"--database", dbDir,
		"--format", "json",
		queryFile,
	)
}

// isToolMissing reports whether err indicates the tool binary is absent
// rather than a failing invocation.
func isToolMissing(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr)
}

var _ Toolchain = (*codeqlToolchain)(nil)
