package artifacts

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
)

func testRef(revision string) Ref {
	return Ref{
		Tenant:   "acme",
		SourceID: "acme_hosted_repository_org_api",
		Language: "python",
		Revision: revision,
	}
}

func putArchive(t *testing.T, store Store, ref Ref, content string) {
	t.Helper()
	err := store.Put(context.Background(), ref, strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
}

func TestLocalStore_PutGetRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref := testRef("abc123")
	putArchive(t, store, ref, "archive-bytes")

	rc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestLocalStore_Get_NotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), testRef("missing"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocalStore_Exists(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref := testRef("abc123")

	ok, err := store.Exists(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, ok)

	putArchive(t, store, ref, "x")

	ok, err = store.Exists(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStore_Put_ReplacesExisting(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref := testRef("abc123")
	putArchive(t, store, ref, "old")
	putArchive(t, store, ref, "new")

	rc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLocalStore_ListAndDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	putArchive(t, store, testRef("rev1"), "a")
	putArchive(t, store, testRef("rev2"), "b")

	other := testRef("rev1")
	other.SourceID = "acme_hosted_repository_org_other"
	putArchive(t, store, other, "c")

	keys, err := store.List(context.Background(), "acme", "acme_hosted_repository_org_api")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme/acme_hosted_repository_org_api/python/rev1.zip",
		"acme/acme_hosted_repository_org_api/python/rev2.zip",
	}, keys)

	require.NoError(t, store.Delete(context.Background(), "acme", "acme_hosted_repository_org_api"))

	keys, err = store.List(context.Background(), "acme", "acme_hosted_repository_org_api")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Other sources are untouched.
	ok, err := store.Exists(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRef_Validate_RejectsPathSeparators(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref := testRef("abc123")
	ref.Revision = "../escape"

	err = store.Put(context.Background(), ref, strings.NewReader("x"), 1)
	assert.Error(t, err)
}
