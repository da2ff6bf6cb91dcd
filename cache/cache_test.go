// Package cache composes the memory and disk tiers into a two-level
// key-value cache. DiskCache has an asynchronous variant of every data
// operation; the two-tier Cache has them for Get, Set, Contains, Remove and
// RemoveAll only.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cache

import (
	"fmt"
	"testing"

	"github.com/piglikeYoung/kvcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwoTier(t *testing.T) *Cache {
	archive, unarchive := stringArchive()
	c, err := New(t.TempDir(), Config{
		Memory: memcache.Config{AutoTrimInterval: -1, ReleaseSync: true},
		Disk: DiskConfig{
			Archive:          archive,
			Unarchive:        unarchive,
			AutoTrimInterval: -1,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTwoTierSetGet(t *testing.T) {
	c := newTwoTier(t)

	require.True(t, c.Set("k", "hello"))
	assert.True(t, c.Contains("k"))

	// memory hit
	obj, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hello", obj)

	// cost equals the encoded length in both tiers
	assert.EqualValues(t, 5, c.Memory.Cost())
	assert.EqualValues(t, 5, c.TotalCost())
	assert.EqualValues(t, 1, c.TotalCount())
}

func TestTwoTierPromoteOnRead(t *testing.T) {
	c := newTwoTier(t)
	require.True(t, c.Set("k", "persisted"))

	// drop the memory tier only; the next read must come from disk and
	// re-populate memory
	c.Memory.RemoveAll()
	assert.EqualValues(t, 0, c.Memory.Len())

	obj, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "persisted", obj)
	assert.EqualValues(t, 1, c.Memory.Len())
	assert.EqualValues(t, 9, c.Memory.Cost(), "promoted cost equals encoded length")

	hit, ok := c.Memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, "persisted", hit)
}

func TestTwoTierRemove(t *testing.T) {
	c := newTwoTier(t)
	require.True(t, c.Set("k", "v"))
	c.Remove("k")
	assert.False(t, c.Contains("k"))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTwoTierRemoveAll(t *testing.T) {
	c := newTwoTier(t)
	for i := 0; i < 32; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), "v"))
	}
	c.RemoveAll()
	assert.EqualValues(t, 0, c.TotalCount())
	assert.EqualValues(t, 0, c.Memory.Len())
}

func TestTwoTierNilValueRemoves(t *testing.T) {
	c := newTwoTier(t)
	require.True(t, c.Set("k", "v"))
	require.True(t, c.Set("k", nil))
	assert.False(t, c.Contains("k"))
}

func TestTwoTierTrims(t *testing.T) {
	c := newTwoTier(t)
	for i := 0; i < 10; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), "0123456789"))
	}
	c.TrimToCount(4)
	assert.EqualValues(t, 4, c.TotalCount())
	assert.LessOrEqual(t, c.Memory.Len(), uint64(4))

	c.TrimToCost(20)
	assert.EqualValues(t, 2, c.TotalCount())
}

func TestTwoTierAsync(t *testing.T) {
	c := newTwoTier(t)

	done := make(chan bool, 1)
	c.SetAsync("k", "async", func(ok bool) { done <- ok })
	assert.True(t, <-done)

	got := make(chan interface{}, 1)
	c.GetAsync("k", func(_ string, obj interface{}, ok bool) {
		require.True(t, ok)
		got <- obj
	})
	assert.Equal(t, "async", <-got)

	removed := make(chan string, 1)
	c.RemoveAsync("k", func(key string) { removed <- key })
	assert.Equal(t, "k", <-removed)

	contains := make(chan bool, 1)
	c.ContainsAsync("k", func(_ string, ok bool) { contains <- ok })
	assert.False(t, <-contains)
}
