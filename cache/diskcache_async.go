// Package cache composes the memory and disk tiers into a two-level
// key-value cache. DiskCache has an asynchronous variant of every data
// operation; the two-tier Cache has them for Get, Set, Contains, Remove and
// RemoveAll only.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cache

import (
	"time"
)

// Async variants return immediately and run the operation on the cache's
// background worker; the completion callback (nil to ignore) is invoked on
// that worker. Calls made after Close are dropped.

func (dc *DiskCache) ContainsAsync(key string, cb func(key string, contains bool)) {
	dc.dispatch(func() {
		contains := dc.Contains(key)
		if cb != nil {
			cb(key, contains)
		}
	})
}

func (dc *DiskCache) GetAsync(key string, cb func(key string, obj interface{}, ok bool)) {
	dc.dispatch(func() {
		obj, ok := dc.Get(key)
		if cb != nil {
			cb(key, obj, ok)
		}
	})
}

func (dc *DiskCache) GetValueAsync(key string, cb func(key string, value []byte, ok bool)) {
	dc.dispatch(func() {
		value, ok := dc.GetValue(key)
		if cb != nil {
			cb(key, value, ok)
		}
	})
}

func (dc *DiskCache) SetAsync(key string, obj interface{}, cb func(ok bool)) {
	dc.dispatch(func() {
		ok := dc.Set(key, obj)
		if cb != nil {
			cb(ok)
		}
	})
}

func (dc *DiskCache) SetValueAsync(key string, value []byte, cb func(ok bool)) {
	dc.dispatch(func() {
		ok := dc.SetValue(key, value)
		if cb != nil {
			cb(ok)
		}
	})
}

func (dc *DiskCache) RemoveAsync(key string, cb func(key string)) {
	dc.dispatch(func() {
		dc.Remove(key)
		if cb != nil {
			cb(key)
		}
	})
}

func (dc *DiskCache) RemoveAllAsync(cb func()) {
	dc.dispatch(func() {
		dc.RemoveAll()
		if cb != nil {
			cb()
		}
	})
}

func (dc *DiskCache) TotalCountAsync(cb func(count int64)) {
	dc.dispatch(func() {
		count := dc.TotalCount()
		if cb != nil {
			cb(count)
		}
	})
}

func (dc *DiskCache) TotalCostAsync(cb func(cost int64)) {
	dc.dispatch(func() {
		cost := dc.TotalCost()
		if cb != nil {
			cb(cost)
		}
	})
}

func (dc *DiskCache) TrimToCountAsync(count int64, cb func()) {
	dc.dispatch(func() {
		dc.TrimToCount(count)
		if cb != nil {
			cb()
		}
	})
}

func (dc *DiskCache) TrimToCostAsync(cost int64, cb func()) {
	dc.dispatch(func() {
		dc.TrimToCost(cost)
		if cb != nil {
			cb()
		}
	})
}

func (dc *DiskCache) TrimToAgeAsync(age time.Duration, cb func()) {
	dc.dispatch(func() {
		dc.TrimToAge(age)
		if cb != nil {
			cb()
		}
	})
}
