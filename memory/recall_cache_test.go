package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecallCacheStoreAndLookup(t *testing.T) {
	c, err := NewRecallCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, gen, ok := c.Lookup("alpha", "query", 5)
	assert.False(t, ok)

	c.Store(gen, "alpha", "query", 5, "rendered")
	c.Wait()

	got, _, ok := c.Lookup("alpha", "query", 5)
	require.True(t, ok)
	assert.Equal(t, "rendered", got)

	_, _, ok = c.Lookup("beta", "query", 5)
	assert.False(t, ok, "crews do not share entries")
	_, _, ok = c.Lookup("alpha", "query", 3)
	assert.False(t, ok, "k is part of the key")
}

func TestRecallCacheInvalidate(t *testing.T) {
	c, err := NewRecallCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, gen, _ := c.Lookup("alpha", "q", 5)
	c.Store(gen, "alpha", "q", 5, "old")
	c.Wait()

	c.Invalidate()
	_, _, ok := c.Lookup("alpha", "q", 5)
	assert.False(t, ok)
}

func TestRecallCacheDropsStaleStore(t *testing.T) {
	c, err := NewRecallCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, gen, _ := c.Lookup("alpha", "q", 5)
	// A write lands between the query and the store.
	c.Invalidate()
	c.Store(gen, "alpha", "q", 5, "stale")
	c.Wait()

	_, _, ok := c.Lookup("alpha", "q", 5)
	assert.False(t, ok)
}

func TestRecallCacheDisabled(t *testing.T) {
	c, err := NewRecallCache(-1)
	require.NoError(t, err)
	assert.Nil(t, c)

	// All methods are safe on the nil cache.
	_, gen, ok := c.Lookup("alpha", "q", 5)
	assert.False(t, ok)
	c.Store(gen, "alpha", "q", 5, "x")
	c.Invalidate()
	c.Wait()
	c.Close()
}
