package artifacts

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
)

// localStore keeps archives on the local filesystem under a root directory.
// Object keys map directly to file paths below the root.
type localStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed archive store rooted at dir.
func NewLocalStore(dir string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &localStore{root: dir}, nil
}

func (s *localStore) path(ref Ref) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.Key()))
}

// Put writes to a temp file first and renames it into place so readers never
// see a partially written archive.
func (s *localStore) Put(ctx context.Context, ref Ref, r io.Reader, size int64) error {
	if err := ref.validate(); err != nil {
		return err
	}

	dst := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (s *localStore) Get(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return f, nil
}

func (s *localStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ref.validate(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat archive: %w", err)
	}
	return true, nil
}

func (s *localStore) List(ctx context.Context, tenant, sourceID string) ([]string, error) {
	prefix := filepath.Join(s.root, tenant, sourceID)

	keys := make([]string, 0, 8)
	err := filepath.WalkDir(prefix, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *localStore) Delete(ctx context.Context, tenant, sourceID string) error {
	if strings.TrimSpace(tenant) == "" || strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("tenant and source_id are required")
	}
	if err := os.RemoveAll(filepath.Join(s.root, tenant, sourceID)); err != nil {
		return fmt.Errorf("failed to delete archives: %w", err)
	}
	return nil
}

var _ Store = (*localStore)(nil)
