package analysis

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/adapters/source"
	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/retry"
)

// supportedLanguages are the languages the external tool can build databases
// for. Anything else fails fast without invoking the tool.
var supportedLanguages = map[string]bool{
	"python":     true,
	"java":       true,
	"javascript": true,
	"go":         true,
	"cpp":        true,
	"csharp":     true,
	"ruby":       true,
}

// BuildResult is one built (or cache-restored) analysis database, unpacked
// and ready for query execution. Cleanup removes the unpacked directory.
type BuildResult struct {
	Ref     artifacts.Ref
	DBDir   string
	Cached  bool
	Cleanup func()
}

// Builder produces analysis databases, reusing stored artifacts when the
// revision has not changed. Build failures are typed values (*BuildError),
// not panics; only context cancellation surfaces as a plain error.
type Builder interface {
	// Build produces one database per language. The source's working copy
	// is materialized at most once per call and shared across languages;
	// fully cached calls never touch the source at all.
	Build(ctx context.Context, src *models.CodeSource, languages []string, revision string) ([]*BuildResult, error)
}

type databaseBuilder struct {
	tool         Toolchain
	store        artifacts.Store
	adapters     source.AdapterFactory
	workDir      string
	buildTimeout time.Duration
	logger       *zap.Logger
}

// NewBuilder creates a database builder. Built databases and restored
// archives are unpacked under workDir.
func NewBuilder(tool Toolchain, store artifacts.Store, adapters source.AdapterFactory, workDir string, buildTimeout time.Duration, logger *zap.Logger) Builder {
	return &databaseBuilder{
		tool:         tool,
		store:        store,
		adapters:     adapters,
		workDir:      workDir,
		buildTimeout: buildTimeout,
		logger:       logger,
	}
}

// buildSession carries per-call state shared across languages: the toolchain
// is probed once and the working copy is materialized at most once. The copy
// is released when Build returns, so BuildResult directories must not point
// into it.
type buildSession struct {
	probed      bool
	workingCopy string
	revision    string
	cleanup     func()
}

func (s *buildSession) release() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (b *databaseBuilder) Build(ctx context.Context, src *models.CodeSource, languages []string, revision string) ([]*BuildResult, error) {
	session := &buildSession{}
	defer session.release()

	results := make([]*BuildResult, 0, len(languages))
	for _, language := range languages {
		result, err := b.buildLanguage(ctx, src, language, revision, session)
		if err != nil {
			for _, done := range results {
				done.Cleanup()
			}
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (b *databaseBuilder) buildLanguage(ctx context.Context, src *models.CodeSource, language, revision string, session *buildSession) (*BuildResult, error) {
	if !supportedLanguages[language] {
		return nil, &BuildError{
			Kind:     BuildErrorUnsupportedLanguage,
			SourceID: src.SourceID,
			Language: language,
			Detail:   fmt.Sprintf("language %q is not supported by the analysis tool", language),
		}
	}

	ref := artifacts.Ref{
		Tenant:   src.Tenant,
		SourceID: src.SourceID,
		Language: language,
		Revision: revision,
	}

	// Cached-artifact short-circuit: the build step is the dominant cost in
	// this pipeline, so an existing artifact for this exact revision is
	// restored instead of rebuilt.
	exists, err := b.store.Exists(ctx, ref)
	if err != nil {
		b.logger.Warn("artifact store lookup failed, rebuilding",
			zap.String("source_id", src.SourceID),
			zap.Error(err))
	}
	if exists {
		dbDir, err := b.restoreArchive(ctx, ref)
		if err != nil {
			b.logger.Warn("failed to restore cached artifact, rebuilding",
				zap.String("source_id", src.SourceID),
				zap.String("revision", revision),
				zap.Error(err))
		} else {
			b.logger.Info("reusing cached analysis database",
				zap.String("source_id", src.SourceID),
				zap.String("language", language),
				zap.String("revision", revision))
			return &BuildResult{
				Ref:     ref,
				DBDir:   dbDir,
				Cached:  true,
				Cleanup: func() { _ = os.RemoveAll(dbDir) },
			}, nil
		}
	}

	if !session.probed {
		if _, err := b.tool.Version(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &BuildError{
				Kind:     BuildErrorToolMissing,
				SourceID: src.SourceID,
				Language: language,
				Detail:   err.Error(),
				Err:      err,
			}
		}
		session.probed = true
	}

	if session.workingCopy == "" {
		adapter, err := b.adapters.ForSource(src)
		if err != nil {
			return nil, &BuildError{
				Kind:     BuildErrorCrash,
				SourceID: src.SourceID,
				Language: language,
				Detail:   err.Error(),
				Err:      err,
			}
		}

		workingCopy, materializedRev, copyCleanup, err := adapter.Materialize(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &BuildError{
				Kind:     BuildErrorCrash,
				SourceID: src.SourceID,
				Language: language,
				Detail:   err.Error(),
				Err:      err,
			}
		}
		if materializedRev != revision {
			// The remote advanced between resolution and checkout. Artifacts
			// are tagged with what was actually analyzed.
			b.logger.Warn("working copy revision differs from resolved revision",
				zap.String("source_id", src.SourceID),
				zap.String("resolved", revision),
				zap.String("materialized", materializedRev))
		}
		session.workingCopy = workingCopy
		session.revision = materializedRev
		session.cleanup = copyCleanup
	}

	if session.revision != revision {
		ref.Revision = session.revision
	}

	dbDir, err := os.MkdirTemp(b.workDir, "db-"+src.SourceID+"-"+language+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dbDir) }

	buildCtx := ctx
	if b.buildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, b.buildTimeout)
		defer cancel()
	}

	b.logger.Info("building analysis database",
		zap.String("source_id", src.SourceID),
		zap.String("language", language),
		zap.String("revision", ref.Revision))

	if err := b.tool.CreateDatabase(buildCtx, dbDir, session.workingCopy, language); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, b.classifyBuildFailure(buildCtx, src.SourceID, language, err)
	}

	if err := b.archive(ctx, ref, dbDir); err != nil {
		// A database that built but failed to archive is still usable for
		// this run; the next run rebuilds instead of hitting the cache.
		b.logger.Warn("failed to archive analysis database",
			zap.String("source_id", src.SourceID),
			zap.Error(err))
	}

	return &BuildResult{
		Ref:     ref,
		DBDir:   dbDir,
		Cleanup: cleanup,
	}, nil
}

func (b *databaseBuilder) classifyBuildFailure(buildCtx context.Context, sourceID, language string, err error) error {
	kind := BuildErrorCrash
	switch {
	case buildCtx.Err() == context.DeadlineExceeded:
		kind = BuildErrorTimeout
	case isToolMissing(err):
		kind = BuildErrorToolMissing
	}
	return &BuildError{
		Kind:     kind,
		SourceID: sourceID,
		Language: language,
		Detail:   err.Error(),
		Err:      err,
	}
}

// archive bundles the database directory and stores it under the ref.
func (b *databaseBuilder) archive(ctx context.Context, ref artifacts.Ref, dbDir string) error {
	bundle, err := os.CreateTemp(b.workDir, "bundle-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}
	bundlePath := bundle.Name()
	bundle.Close()
	defer os.Remove(bundlePath)

	if err := b.tool.BundleDatabase(ctx, dbDir, bundlePath); err != nil {
		return err
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat bundle: %w", err)
	}

	// Object-store uploads hit transient network failures; each attempt
	// rewinds the bundle so the full body is sent again.
	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind bundle: %w", err)
		}
		return b.store.Put(ctx, ref, f, info.Size())
	})
}

// restoreArchive fetches a stored bundle and unpacks it under the work dir.
func (b *databaseBuilder) restoreArchive(ctx context.Context, ref artifacts.Ref) (string, error) {
	rc, err := b.store.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	bundle, err := os.CreateTemp(b.workDir, "restore-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create restore file: %w", err)
	}
	bundlePath := bundle.Name()
	defer os.Remove(bundlePath)

	if _, err := io.Copy(bundle, rc); err != nil {
		bundle.Close()
		return "", fmt.Errorf("failed to fetch archive: %w", err)
	}
	if err := bundle.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	dbDir, err := os.MkdirTemp(b.workDir, "db-"+ref.SourceID+"-"+ref.Language+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create database dir: %w", err)
	}

	if err := unzipDir(bundlePath, dbDir); err != nil {
		_ = os.RemoveAll(dbDir)
		return "", err
	}
	return dbDir, nil
}

// unzipDir extracts an archive into dst, refusing entries that escape it.
func unzipDir(archivePath, dst string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dst, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(out, src)
		src.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Builder = (*databaseBuilder)(nil)
