// Package memcache provides a concurrent in-process LRU cache with
// count, cost and age limits and deferred release of evicted values.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package memcache

import (
	"sync"
	"time"

	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/piglikeYoung/kvcache/cmn/mono"
	"github.com/piglikeYoung/kvcache/hk"
	"go.uber.org/atomic"
)

// The cache keeps an index (key => node) over an intrusive doubly-linked
// list ordered by recency, head being the most recently used entry. All
// public operations are safe from any goroutine and, except the trims, O(1);
// one mutex guards the index, the list and the running totals.
//
// Limits are soft. A Set that overshoots CountLimit or CostLimit trims
// synchronously, releasing the mutex after every evictBatch evictions to
// bound the critical section; a reader may observe the cache above its
// limits in between batches. A housekeeping callback re-applies all three
// limits every AutoTrimInterval.
//
// Values evicted or removed are not destroyed under the mutex: nodes are
// handed to the process-wide release pool (see release.go) so that heavy
// finalization never stalls Set/Remove callers.

const (
	// number of tail evictions performed per critical section
	evictBatch = 10

	defaultAutoTrimInterval = 5 * time.Second
)

type (
	Config struct {
		// Name identifies the cache in logs and housekeeping; optional.
		Name string

		// CountLimit and CostLimit bound the number of entries and the sum
		// of their costs; 0 means unlimited.
		CountLimit uint64
		CostLimit  uint64

		// AgeLimit evicts entries not accessed for longer than the limit;
		// 0 means unlimited.
		AgeLimit time.Duration

		// AutoTrimInterval is the period of the housekeeping trim;
		// 0 selects the default (5s), negative disables auto trim.
		AutoTrimInterval time.Duration

		// OnEvict, when non-nil, is invoked for every entry leaving the
		// cache (eviction, Remove, RemoveAll). It runs on the release pool
		// unless ReleaseSync is set.
		OnEvict func(key string, value interface{})

		// ReleaseSync forces release work to run on the calling goroutine.
		ReleaseSync bool
	}

	node struct {
		key        string
		value      interface{}
		cost       uint64
		lastAccess int64 // mono nanoseconds
		prev, next *node
	}

	Cache struct {
		mu    sync.Mutex
		index map[string]*node
		head  *node
		tail  *node

		// running totals, atomically readable without the mutex
		totalCount atomic.Uint64
		totalCost  atomic.Uint64

		config Config
		hkName string
		stopCh *cmn.StopCh
	}
)

// New creates a cache and registers its periodic trim with the housekeeper.
func New(config Config) *Cache {
	if config.AutoTrimInterval == 0 {
		config.AutoTrimInterval = defaultAutoTrimInterval
	}
	c := &Cache{
		index:  make(map[string]*node),
		config: config,
		stopCh: cmn.NewStopCh(),
	}
	if config.AutoTrimInterval > 0 {
		c.hkName = "memcache." + config.Name + "." + cmn.GenUUID()
		hk.Reg(c.hkName, c.housekeep, config.AutoTrimInterval)
	}
	return c
}

// Stop unregisters housekeeping. No trim callback runs after Stop returns
// (the callback checks stopCh under the housekeeper goroutine).
func (c *Cache) Stop() {
	c.stopCh.Close()
	if c.hkName != "" {
		hk.Unreg(c.hkName)
	}
}

// Contains reports key presence without touching recency.
func (c *Cache) Contains(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	_, ok := c.index[key]
	c.mu.Unlock()
	return ok
}

// Get returns the value stored under key and marks it most recently used.
func (c *Cache) Get(key string) (value interface{}, ok bool) {
	if key == "" {
		return
	}
	c.mu.Lock()
	n, ok := c.index[key]
	if ok {
		n.lastAccess = mono.NanoTime()
		c.moveToHead(n)
		value = n.value
	}
	c.mu.Unlock()
	return
}

// Set upserts (key, value) with the given cost and then trims if either the
// count or the cost limit is exceeded.
func (c *Cache) Set(key string, value interface{}, cost uint64) {
	if key == "" {
		return
	}
	var old *node
	c.mu.Lock()
	if n, ok := c.index[key]; ok {
		if c.config.OnEvict != nil {
			old = &node{key: n.key, value: n.value}
		}
		c.totalCost.Add(cost - n.cost)
		n.value = value
		n.cost = cost
		n.lastAccess = mono.NanoTime()
		c.moveToHead(n)
	} else {
		n = &node{key: key, value: value, cost: cost, lastAccess: mono.NanoTime()}
		c.index[key] = n
		c.pushHead(n)
		c.totalCount.Add(1)
		c.totalCost.Add(cost)
	}
	c.mu.Unlock()
	if old != nil {
		c.release(old)
	}
	if limit := c.config.CostLimit; limit > 0 && c.totalCost.Load() > limit {
		c.TrimToCost(limit)
	}
	if limit := c.config.CountLimit; limit > 0 && c.totalCount.Load() > limit {
		c.TrimToCount(limit)
	}
}

// Remove deletes the entry; the value is destroyed on the release pool.
func (c *Cache) Remove(key string) {
	if key == "" {
		return
	}
	c.mu.Lock()
	n, ok := c.index[key]
	if ok {
		c.unlink(n)
	}
	c.mu.Unlock()
	if ok {
		c.release(n)
	}
}

// RemoveAll detaches the whole index and list in one step and hands the
// detached structure to the release pool.
func (c *Cache) RemoveAll() {
	c.mu.Lock()
	detached := c.index
	head := c.head
	c.index = make(map[string]*node)
	c.head, c.tail = nil, nil
	c.totalCount.Store(0)
	c.totalCost.Store(0)
	c.mu.Unlock()

	if len(detached) == 0 {
		return
	}
	c.releaseAll(head)
}

// Len returns the current number of entries.
func (c *Cache) Len() uint64 { return c.totalCount.Load() }

// Cost returns the sum of entry costs.
func (c *Cache) Cost() uint64 { return c.totalCost.Load() }

//////////
// trim //
//////////

// TrimToCount evicts tail entries until at most n remain.
func (c *Cache) TrimToCount(n uint64) {
	c.trim(func() bool { return c.totalCount.Load() > n }, 0)
}

// TrimToCost evicts tail entries until the total cost is at most cost.
func (c *Cache) TrimToCost(cost uint64) {
	c.trim(func() bool { return c.totalCost.Load() > cost }, 0)
}

// TrimToAge evicts every entry not accessed within age.
func (c *Cache) TrimToAge(age time.Duration) {
	if age <= 0 {
		c.RemoveAll()
		return
	}
	oldest := mono.NanoTime() - age.Nanoseconds()
	c.trim(func() bool { return true }, oldest)
}

// trim evicts from the tail in batches of evictBatch, releasing the mutex
// in between so that concurrent readers are not starved. cond is checked
// with totals only; when oldest is non-zero eviction additionally stops at
// the first entry younger than it.
func (c *Cache) trim(cond func() bool, oldest int64) {
	var batch [evictBatch]*node
	for {
		if !cond() {
			return
		}
		n := 0
		c.mu.Lock()
		for n < evictBatch && c.tail != nil && cond() {
			if oldest != 0 && c.tail.lastAccess >= oldest {
				break
			}
			victim := c.tail
			c.unlink(victim)
			batch[n] = victim
			n++
		}
		c.mu.Unlock()
		for i := 0; i < n; i++ {
			c.release(batch[i])
			batch[i] = nil
		}
		if n < evictBatch {
			return
		}
	}
}

// housekeep runs under the housekeeper goroutine: count, cost, then age.
func (c *Cache) housekeep() time.Duration {
	select {
	case <-c.stopCh.Listen():
		return time.Hour
	default:
	}
	if limit := c.config.CountLimit; limit > 0 {
		c.TrimToCount(limit)
	}
	if limit := c.config.CostLimit; limit > 0 {
		c.TrimToCost(limit)
	}
	if limit := c.config.AgeLimit; limit > 0 {
		c.TrimToAge(limit)
	}
	return c.config.AutoTrimInterval
}

//////////////////////
// intrusive list   //
//////////////////////

// callers must hold c.mu

func (c *Cache) pushHead(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) moveToHead(n *node) {
	if c.head == n {
		return
	}
	n.prev.next = n.next
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = c.head
	c.head.prev = n
	c.head = n
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	delete(c.index, n.key)
	c.totalCount.Sub(1)
	c.totalCost.Sub(n.cost)
}
