package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespacedIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()

	a := Namespaced(backend, "visitor:a")
	b := Namespaced(backend, "visitor:b")

	require.NoError(t, a.Set(ctx, "close_count", "3"))

	v, ok, err := a.Get(ctx, "close_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok, err = b.Get(ctx, "close_count")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces must not leak into each other")

	require.NoError(t, a.Remove(ctx, "close_count"))
	_, ok, err = a.Get(ctx, "close_count")
	require.NoError(t, err)
	assert.False(t, ok)
}
