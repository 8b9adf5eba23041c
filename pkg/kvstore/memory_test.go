package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "code:user-1", "123456", 0))

	value, ok, err := store.Get(ctx, "code:user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", value)

	require.NoError(t, store.Delete(ctx, "code:user-1"))

	_, ok, err = store.Get(ctx, "code:user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "code:user-1", "123456", time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "code:user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_MissingKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value, ok, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}
