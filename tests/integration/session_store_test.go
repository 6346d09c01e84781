//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

func TestPgSessionStore_Integration(t *testing.T) {
	cleanTable(t, "session_entries")
	store := sessioncache.NewPgStore(testPool)
	ctx := context.Background()

	t.Run("Set and Get roundtrip", func(t *testing.T) {
		key := sessioncache.SearchKey("session-roundtrip")
		require.NoError(t, store.Set(ctx, key, []byte(`{"0:10.1000/x":{}}`), time.Hour))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"0:10.1000/x":{}}`), got)
	})

	t.Run("Set replaces existing value and deadline", func(t *testing.T) {
		key := sessioncache.QueryKey("session-replace")
		require.NoError(t, store.Set(ctx, key, []byte("first"), time.Hour))
		require.NoError(t, store.Set(ctx, key, []byte("second"), time.Hour))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("Get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, sessioncache.TypeKey("never-written"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Get expired key", func(t *testing.T) {
		key := sessioncache.SearchKey("session-expired")
		require.NoError(t, store.Set(ctx, key, []byte("stale"), 10*time.Millisecond))

		time.Sleep(50 * time.Millisecond)

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		key := sessioncache.ProgressKey("session-delete")
		require.NoError(t, store.Set(ctx, key, []byte("progress"), time.Hour))

		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key))

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DeleteExpired purges only stale entries", func(t *testing.T) {
		cleanTable(t, "session_entries")

		require.NoError(t, store.Set(ctx, sessioncache.SearchKey("stale-a"), []byte("a"), 10*time.Millisecond))
		require.NoError(t, store.Set(ctx, sessioncache.SearchKey("stale-b"), []byte("b"), 10*time.Millisecond))
		require.NoError(t, store.Set(ctx, sessioncache.SearchKey("fresh"), []byte("c"), time.Hour))

		time.Sleep(50 * time.Millisecond)

		purged, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, purged)

		got, err := store.Get(ctx, sessioncache.SearchKey("fresh"))
		require.NoError(t, err)
		assert.Equal(t, []byte("c"), got)
	})
}
