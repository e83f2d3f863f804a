package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Ref addresses one stored analysis database archive. Archives are immutable
// once written; a new revision produces a new ref.
type Ref struct {
	Tenant   string
	SourceID string
	Language string
	Revision string
}

// Key returns the storage key for the ref.
func (r Ref) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s.zip", r.Tenant, r.SourceID, r.Language, r.Revision)
}

func (r Ref) validate() error {
	for name, v := range map[string]string{
		"tenant":    r.Tenant,
		"source_id": r.SourceID,
		"language":  r.Language,
		"revision":  r.Revision,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", name)
		}
		if strings.ContainsAny(v, "/\\") {
			return fmt.Errorf("%s must not contain path separators", name)
		}
	}
	return nil
}

// Store persists analysis database archives. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores the archive read from r under the ref, replacing any
	// existing object.
	Put(ctx context.Context, ref Ref, r io.Reader, size int64) error

	// Get opens the archive stored under the ref. Returns
	// apperrors.ErrNotFound if no such archive exists.
	Get(ctx context.Context, ref Ref) (io.ReadCloser, error)

	// Exists reports whether an archive is stored under the ref.
	Exists(ctx context.Context, ref Ref) (bool, error)

	// List returns keys of all archives stored for the source, sorted.
	List(ctx context.Context, tenant, sourceID string) ([]string, error)

	// Delete removes all archives stored for the source.
	Delete(ctx context.Context, tenant, sourceID string) error
}
