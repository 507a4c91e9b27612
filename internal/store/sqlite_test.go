package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBackend_LazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	b := NewSQLiteBackend(path)
	defer b.Close()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "constructor must not touch the filesystem")

	_, err = b.All(context.Background(), CollectionProducts)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err, "first access creates the database")
}

func TestSQLiteBackend_Pragmas(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(filepath.Join(t.TempDir(), "cache.db"))
	defer b.Close()

	assert.NoError(t, b.verifyPragma(ctx, "journal_mode", "wal"))
	assert.NoError(t, b.verifyPragma(ctx, "synchronous", "1"))
	assert.NoError(t, b.verifyPragma(ctx, "busy_timeout", "5000"))
	assert.NoError(t, b.verifyPragma(ctx, "user_version", "1"))
}

func TestSQLiteBackend_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first := NewSQLiteBackend(path)
	_, err := first.Put(ctx, CollectionCart, RawRecord{ID: "p1", Payload: []byte(`{"_id":"p1"}`), Digest: "d1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := NewSQLiteBackend(path)
	defer second.Close()
	recs, err := second.All(ctx, CollectionCart)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0].ID)
	assert.Equal(t, "d1", recs[0].Digest)
}

func TestSQLiteBackend_PutSkipsUnchangedDigest(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(MemoryPath)
	defer b.Close()

	rec := RawRecord{ID: "p1", Payload: []byte(`{"_id":"p1"}`), Digest: "d1"}
	changed, err := b.Put(ctx, CollectionProducts, rec)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = b.Put(ctx, CollectionProducts, rec)
	require.NoError(t, err)
	assert.False(t, changed, "same digest is a no-op")

	rec.Payload = []byte(`{"_id":"p1","name":"x"}`)
	rec.Digest = "d2"
	changed, err = b.Put(ctx, CollectionProducts, rec)
	require.NoError(t, err)
	assert.True(t, changed)

	recs, err := b.All(ctx, CollectionProducts)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{"_id":"p1","name":"x"}`, string(recs[0].Payload))
}

func TestSQLiteBackend_AllOrderedByID(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(MemoryPath)
	defer b.Close()

	for _, id := range []string{"c", "a", "b"} {
		_, err := b.Put(ctx, CollectionCategories, RawRecord{ID: id, Payload: []byte(`{}`), Digest: id})
		require.NoError(t, err)
	}
	recs, err := b.All(ctx, CollectionCategories)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
}

func TestSQLiteBackend_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(MemoryPath)
	defer b.Close()

	for _, id := range []string{"a", "b"} {
		_, err := b.Put(ctx, CollectionCart, RawRecord{ID: id, Payload: []byte(`{}`), Digest: id})
		require.NoError(t, err)
	}

	require.NoError(t, b.Delete(ctx, CollectionCart, "a"))
	require.NoError(t, b.Delete(ctx, CollectionCart, "a"), "deleting a missing id is not an error")

	recs, err := b.All(ctx, CollectionCart)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, b.Clear(ctx, CollectionCart))
	recs, err = b.All(ctx, CollectionCart)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteBackend_UnknownCollection(t *testing.T) {
	b := NewSQLiteBackend(MemoryPath)
	defer b.Close()

	_, err := b.All(context.Background(), "orders; DROP TABLE cart")
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownCollection, CodeOf(err))
	assert.False(t, IsUnavailable(err))
}

func TestSQLiteBackend_OpenFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	b := NewSQLiteBackend(filepath.Join(blocker, "sub", "cache.db"))
	defer b.Close()

	_, err := b.All(ctx, CollectionProducts)
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnavailable, CodeOf(err))
	assert.True(t, IsUnavailable(err))

	_, err = b.Put(ctx, CollectionProducts, RawRecord{ID: "p1", Payload: []byte(`{}`), Digest: "d"})
	assert.True(t, IsUnavailable(err))

	// Once the obstruction is gone the next call opens successfully.
	require.NoError(t, os.Remove(blocker))
	_, err = b.All(ctx, CollectionProducts)
	assert.NoError(t, err)
}

func TestSQLiteBackend_CloseThenReuse(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(filepath.Join(t.TempDir(), "cache.db"))

	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Ping(ctx), "a closed backend reopens lazily")
	require.NoError(t, b.Close())
}

func TestSQLiteBackend_AllUsesBinaryOrder(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBackend(filepath.Join(t.TempDir(), "cache.db"))
	defer b.Close()

	for _, id := range []string{"b", "a", "B", "A"} {
		_, err := b.Put(ctx, CollectionProducts, RawRecord{ID: id, Payload: []byte(`{}`), Digest: id})
		require.NoError(t, err)
	}
	recs, err := b.All(ctx, CollectionProducts)
	require.NoError(t, err)
	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"A", "B", "a", "b"}, got)
}
