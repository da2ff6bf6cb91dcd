// Package cache composes the memory and disk tiers into a two-level
// key-value cache. DiskCache has an asynchronous variant of every data
// operation; the two-tier Cache has them for Get, Set, Contains, Remove and
// RemoveAll only.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cache

import (
	"sync"
)

// Extended data is an opaque sidecar attached to an in-memory object
// before Set and recovered after Get; the disk tier transports it through
// the manifest's extended_data column. The association is by object
// identity, so objects carrying extended data must be pointers (or other
// comparable values with stable identity).

var (
	extendedMtx sync.Mutex
	extended    = make(map[interface{}][]byte)
)

// SetExtendedData attaches data to obj; nil data detaches.
func SetExtendedData(obj interface{}, data []byte) {
	if obj == nil {
		return
	}
	extendedMtx.Lock()
	if data == nil {
		delete(extended, obj)
	} else {
		extended[obj] = data
	}
	extendedMtx.Unlock()
}

// GetExtendedData returns the sidecar previously attached to obj, nil if
// none.
func GetExtendedData(obj interface{}) []byte {
	if obj == nil {
		return nil
	}
	extendedMtx.Lock()
	data := extended[obj]
	extendedMtx.Unlock()
	return data
}
