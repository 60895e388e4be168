package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/tokendesk/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, NewStore())
}

func TestMemoryStoreCloseDropsValues(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, "default", "access_token", []byte("secret")))
	require.NoError(t, s.Close())

	keys, err := s.List(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
