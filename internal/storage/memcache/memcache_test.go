package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := New(2, time.Minute)

	_, ok, err := c.Get(ctx, "cart:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`{"total_items":1}`)
	require.NoError(t, c.Set(ctx, "cart:u1", value))
	value[0] = 'X'

	got, ok, err := c.Get(ctx, "cart:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"total_items":1}`, string(got))

	require.NoError(t, c.Delete(ctx, "cart:u1"))
	require.NoError(t, c.Delete(ctx, "cart:u1"))
	_, ok, _ = c.Get(ctx, "cart:u1")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := New(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := New(10, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
