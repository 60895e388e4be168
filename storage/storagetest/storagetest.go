// Package storagetest holds the behavioural suite every storage.Store
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/tokendesk/storage"
)

// Run exercises store with the shared contract. The store must be empty for
// the namespaces "profile-a" and "profile-b".
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "profile-a", "access_token", []byte("tok-1")))
		got, err := store.Get(ctx, "profile-a", "access_token")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "profile-a", "user", []byte(`{"id":"1"}`)))
		require.NoError(t, store.Put(ctx, "profile-a", "user", []byte(`{"id":"2"}`)))
		got, err := store.Get(ctx, "profile-a", "user")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"2"}`, string(got))
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		_, err := store.Get(ctx, "profile-a", "no-such-key")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("GetMissingNamespace", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-profile", "access_token")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "profile-b", "access_token", []byte("tok-b")))
		a, err := store.Get(ctx, "profile-a", "access_token")
		require.NoError(t, err)
		b, err := store.Get(ctx, "profile-b", "access_token")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", string(a))
		assert.Equal(t, "tok-b", string(b))
	})

	t.Run("List", func(t *testing.T) {
		keys, err := store.List(ctx, "profile-a")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"access_token", "user"}, keys)

		empty, err := store.List(ctx, "no-such-profile")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "profile-b", "access_token"))
		_, err := store.Get(ctx, "profile-b", "access_token")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := store.Delete(ctx, "profile-b", "access_token")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		value := []byte("original")
		require.NoError(t, store.Put(ctx, "profile-b", "copy", value))
		value[0] = 'X'
		got, err := store.Get(ctx, "profile-b", "copy")
		require.NoError(t, err)
		assert.Equal(t, "original", string(got))

		got[0] = 'Y'
		again, err := store.Get(ctx, "profile-b", "copy")
		require.NoError(t, err)
		assert.Equal(t, "original", string(again))
	})
}
