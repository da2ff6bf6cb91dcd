// Package cache composes the memory and disk tiers into a two-level
// key-value cache. DiskCache has an asynchronous variant of every data
// operation; the two-tier Cache has them for Get, Set, Contains, Remove and
// RemoveAll only.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cache

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/piglikeYoung/kvcache/memcache"
	"golang.org/x/sync/errgroup"
)

// Cache is the two-tier facade: reads hit memory first and promote disk
// hits into memory with a cost equal to the encoded byte length; writes
// encode once and land in both tiers. The disk tier is authoritative for
// counts and costs. Cross-tier consistency is last-write-wins with no
// transactions: a reader racing a writer may briefly observe one tier
// ahead of the other.

type (
	Config struct {
		// Name labels the cache; defaults to the directory base name.
		Name string

		Memory memcache.Config
		Disk   DiskConfig
	}

	Cache struct {
		Name string

		Memory *memcache.Cache
		Disk   *DiskCache
	}
)

// New opens (or joins) the disk cache at path and pairs it with a fresh
// memory tier.
func New(path string, config Config) (*Cache, error) {
	if config.Name == "" {
		config.Name = filepath.Base(path)
	}
	disk, err := OpenDisk(path, config.Disk)
	if err != nil {
		return nil, err
	}
	if config.Memory.Name == "" {
		config.Memory.Name = config.Name
	}
	return &Cache{
		Name:   config.Name,
		Memory: memcache.New(config.Memory),
		Disk:   disk,
	}, nil
}

// Contains reports key presence in either tier.
func (c *Cache) Contains(key string) bool {
	return c.Memory.Contains(key) || c.Disk.Contains(key)
}

// Get returns the object stored under key, consulting memory first and
// promoting a disk hit into the memory tier.
func (c *Cache) Get(key string) (interface{}, bool) {
	if obj, ok := c.Memory.Get(key); ok {
		return obj, true
	}
	obj, size, ok := c.Disk.getObject(key)
	if !ok {
		return nil, false
	}
	c.Memory.Set(key, obj, uint64(size))
	return obj, true
}

// Set stores obj in both tiers; the disk tier archives it. A nil obj
// removes the entry.
func (c *Cache) Set(key string, obj interface{}) bool {
	if key == "" {
		return false
	}
	if obj == nil {
		c.Remove(key)
		return true
	}
	if c.Disk.config.Archive == nil {
		return false
	}
	value, err := c.Disk.config.Archive(obj)
	if err != nil {
		return false
	}

	// both tiers take the already-encoded value; the writes are
	// independent and proceed in parallel
	extendedData := GetExtendedData(obj)
	var g errgroup.Group
	g.Go(func() error {
		c.Memory.Set(key, obj, uint64(len(value)))
		return nil
	})
	g.Go(func() error {
		if !c.Disk.setValue(key, value, extendedData) {
			return errSaveFailed
		}
		return nil
	})
	return g.Wait() == nil
}

var errSaveFailed = errors.New("disk save failed")

// Remove deletes key from both tiers.
func (c *Cache) Remove(key string) {
	c.Memory.Remove(key)
	c.Disk.Remove(key)
}

// RemoveAll wipes both tiers.
func (c *Cache) RemoveAll() {
	c.Memory.RemoveAll()
	c.Disk.RemoveAll()
}

// TotalCount returns the number of cached entries (disk tier is
// authoritative).
func (c *Cache) TotalCount() int64 { return c.Disk.TotalCount() }

// TotalCost returns the cached bytes (disk tier is authoritative).
func (c *Cache) TotalCost() int64 { return c.Disk.TotalCost() }

// TrimToCount trims both tiers to at most count entries.
func (c *Cache) TrimToCount(count int64) {
	if count < 0 {
		return
	}
	c.Memory.TrimToCount(uint64(count))
	c.Disk.TrimToCount(count)
}

// TrimToCost trims both tiers to at most cost bytes.
func (c *Cache) TrimToCost(cost int64) {
	if cost < 0 {
		return
	}
	c.Memory.TrimToCost(uint64(cost))
	c.Disk.TrimToCost(cost)
}

// TrimToAge trims entries older than age from both tiers.
func (c *Cache) TrimToAge(age time.Duration) {
	c.Memory.TrimToAge(age)
	c.Disk.TrimToAge(age)
}

// Close stops the memory tier and closes the disk tier.
func (c *Cache) Close() error {
	c.Memory.Stop()
	return c.Disk.Close()
}

///////////
// async //
///////////

// GetAsync resolves the lookup on the disk cache's worker and reports the
// result to cb.
func (c *Cache) GetAsync(key string, cb func(key string, obj interface{}, ok bool)) {
	if obj, ok := c.Memory.Get(key); ok {
		c.Disk.dispatch(func() {
			if cb != nil {
				cb(key, obj, true)
			}
		})
		return
	}
	c.Disk.dispatch(func() {
		obj, size, ok := c.Disk.getObject(key)
		if ok {
			c.Memory.Set(key, obj, uint64(size))
		}
		if cb != nil {
			cb(key, obj, ok)
		}
	})
}

// SetAsync stores obj in both tiers on the worker.
func (c *Cache) SetAsync(key string, obj interface{}, cb func(ok bool)) {
	c.Disk.dispatch(func() {
		ok := c.Set(key, obj)
		if cb != nil {
			cb(ok)
		}
	})
}

// ContainsAsync resolves the presence check on the worker.
func (c *Cache) ContainsAsync(key string, cb func(key string, contains bool)) {
	c.Disk.dispatch(func() {
		contains := c.Contains(key)
		if cb != nil {
			cb(key, contains)
		}
	})
}

// RemoveAsync deletes key from both tiers on the worker.
func (c *Cache) RemoveAsync(key string, cb func(key string)) {
	c.Disk.dispatch(func() {
		c.Remove(key)
		if cb != nil {
			cb(key)
		}
	})
}

// RemoveAllAsync wipes both tiers on the worker.
func (c *Cache) RemoveAllAsync(cb func()) {
	c.Disk.dispatch(func() {
		c.RemoveAll()
		if cb != nil {
			cb()
		}
	})
}
