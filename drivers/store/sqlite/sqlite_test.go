package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swrcache"
	"swrcache/drivers/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "snapshot", `{"users":{}}`))

	got, err := store.GetItem(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, `{"users":{}}`, got)
}

func TestStore_MissReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetItem(context.Background(), "absent")
	assert.ErrorIs(t, err, swrcache.ErrNotFound)
}

func TestStore_SetItemOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "snapshot", "v1"))
	require.NoError(t, store.SetItem(ctx, "snapshot", "v2"))

	got, err := store.GetItem(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestStore_RemoveItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "snapshot", "v1"))
	require.NoError(t, store.RemoveItem(ctx, "snapshot"))

	_, err := store.GetItem(ctx, "snapshot")
	assert.ErrorIs(t, err, swrcache.ErrNotFound)

	// Removing an absent name is a no-op.
	assert.NoError(t, store.RemoveItem(ctx, "snapshot"))
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is a no-op")

	_, err := store.GetItem(context.Background(), "snapshot")
	assert.Error(t, err)
	assert.Error(t, store.SetItem(context.Background(), "snapshot", "v"))
	assert.Error(t, store.RemoveItem(context.Background(), "snapshot"))
}

func TestStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	first, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, first.SetItem(ctx, "snapshot", "persisted"))
	require.NoError(t, first.Close())

	second, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetItem(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}
