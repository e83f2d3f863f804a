package source

import (
	"context"

	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// Adapter resolves revisions and produces working copies for one source type.
// Each implementation owns any checkout it creates; callers release it with
// the returned cleanup function.
type Adapter interface {
	// CurrentRevision resolves the source's current head revision without
	// materializing a working copy where the backend allows it. Returns
	// apperrors.ErrRevisionUnavailable when the source cannot be reached or
	// has no resolvable head.
	CurrentRevision(ctx context.Context, src *models.CodeSource) (string, error)

	// Materialize produces a local working copy of the source at its current
	// head and returns its directory along with the revision it holds.
	// The cleanup function removes any checkout this call created.
	Materialize(ctx context.Context, src *models.CodeSource) (dir, revision string, cleanup func(), err error)
}

// AdapterFactory returns the adapter for a source's type.
type AdapterFactory interface {
	ForSource(src *models.CodeSource) (Adapter, error)
}
