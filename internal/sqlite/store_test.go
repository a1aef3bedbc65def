package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "meta:a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "meta:a", `{"id":"a"}`))
	require.NoError(t, store.Put(ctx, "content:a", "hello"))
	require.NoError(t, store.Put(ctx, "meta:b", `{"id":"b"}`))
	require.NoError(t, store.Put(ctx, "meta:a", `{"id":"a","downloadCount":1}`))

	v, ok, err := store.Get(ctx, "meta:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"a","downloadCount":1}`, v)

	keys, err := store.List(ctx, "meta:")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta:a", "meta:b"}, keys)

	require.NoError(t, store.Delete(ctx, "meta:a"))
	require.NoError(t, store.Delete(ctx, "meta:a"))

	keys, err = store.List(ctx, "meta:")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta:b"}, keys)
}

func TestStoreListTreatsPrefixLiterally(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "meta:x", "1"))
	require.NoError(t, store.Put(ctx, "metaXy", "2"))
	require.NoError(t, store.Put(ctx, "me%a:z", "3"))

	keys, err := store.List(ctx, "meta:")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta:x"}, keys)

	keys, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "content:a", "kept"))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	v, ok, err := store.Get(ctx, "content:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kept", v)
}
