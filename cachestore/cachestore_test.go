package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCacheStore(t *testing.T) {
	ctx := context.Background()
	cs := NewMemCacheStore(4, time.Minute)

	_, ok, err := cs.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cs.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := cs.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, cs.Purge(ctx, "k"))
	_, ok, err = cs.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemCacheStoreEviction(t *testing.T) {
	ctx := context.Background()
	cs := NewMemCacheStore(2, time.Minute)

	require.NoError(t, cs.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, cs.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, cs.Set(ctx, "c", []byte("3"), time.Minute))

	// oldest entry fell out
	_, ok, err := cs.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cs.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}
