// Package cache composes the memory and disk tiers into a two-level
// key-value cache. DiskCache has an asynchronous variant of every data
// operation; the two-tier Cache has them for Get, Set, Contains, Remove and
// RemoveAll only.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/piglikeYoung/kvcache/hk"
	"github.com/piglikeYoung/kvcache/kvstore"
)

// DiskCache is the persistent tier: one kvstore.Store per directory,
// guarded by a per-path mutex (the store itself is single-writer), with
// LRU limits applied by housekeeping and a process-wide intern table
// guaranteeing at most one instance per normalized path.

const (
	// DefaultInlineThreshold routes values at or below 20 KiB into the
	// manifest and larger ones into files; see the sqlite
	// internal-vs-external blob guidance.
	DefaultInlineThreshold = 20 * cmn.KiB

	// AlwaysInline as InlineThreshold stores every value in the manifest.
	AlwaysInline = int64(math.MaxInt64)
	// AlwaysExternal as InlineThreshold stores every value as a file.
	AlwaysExternal = int64(-1)

	defaultDiskTrimInterval = 60 * time.Second
)

type (
	// ArchiveFunc encodes an object to bytes; UnarchiveFunc decodes it
	// back. The pair is the pluggable serialization boundary.
	ArchiveFunc   func(obj interface{}) ([]byte, error)
	UnarchiveFunc func(data []byte) (interface{}, error)

	// FileNameFunc derives the external file name for a key.
	FileNameFunc func(key string) string

	DiskConfig struct {
		// InlineThreshold: 0 selects DefaultInlineThreshold,
		// AlwaysExternal (negative) stores every value as a file,
		// AlwaysInline every value in the manifest.
		InlineThreshold int64

		// Limits; 0 means unlimited.
		CountLimit int64
		CostLimit  int64
		AgeLimit   time.Duration

		// FreeDiskSpaceLimit, when positive, halves the entry count each
		// housekeeping tick while the filesystem has fewer free bytes.
		FreeDiskSpaceLimit int64

		// AutoTrimInterval defaults to 60s; negative disables.
		AutoTrimInterval time.Duration

		Archive   ArchiveFunc
		Unarchive UnarchiveFunc
		FileName  FileNameFunc

		ErrorLogsEnabled bool
	}

	DiskCache struct {
		// Name labels the cache in logs; defaults to the directory base.
		Name string

		path   string
		config DiskConfig

		mu    sync.Mutex // serializes all access to store
		store *kvstore.Store

		worker *worker
		hkName string
		closed bool
	}
)

var (
	internMtx sync.Mutex
	interned  = make(map[string]*DiskCache)
)

// OpenDisk returns the disk cache for path, creating it on first use. A
// second call with the same (normalized) path returns the existing
// instance and ignores the config.
func OpenDisk(path string, config DiskConfig) (*DiskCache, error) {
	norm := cmn.NormalizePath(path)
	internMtx.Lock()
	defer internMtx.Unlock()
	if dc, ok := interned[norm]; ok {
		return dc, nil
	}

	if config.InlineThreshold == 0 {
		config.InlineThreshold = DefaultInlineThreshold
	}
	if config.AutoTrimInterval == 0 {
		config.AutoTrimInterval = defaultDiskTrimInterval
	}
	if config.FileName == nil {
		config.FileName = defaultFileName
	}

	var typ kvstore.StorageType
	switch {
	case config.InlineThreshold < 0:
		typ = kvstore.TypeFile
	case config.InlineThreshold == AlwaysInline:
		typ = kvstore.TypeSQLite
	default:
		typ = kvstore.TypeMixed
	}
	store, err := kvstore.Open(norm, typ)
	if err != nil {
		return nil, err
	}
	store.ErrorLogsEnabled = config.ErrorLogsEnabled

	dc := &DiskCache{
		Name:   filepath.Base(norm),
		path:   norm,
		config: config,
		store:  store,
		worker: newWorker(),
	}
	if config.AutoTrimInterval > 0 {
		dc.hkName = "diskcache." + cmn.GenUUID()
		hk.Reg(dc.hkName, dc.housekeep, config.AutoTrimInterval)
	}
	interned[norm] = dc
	return dc, nil
}

// defaultFileName is the lowercase hex MD5 of the key.
func defaultFileName(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Path returns the directory this cache owns.
func (dc *DiskCache) Path() string { return dc.path }

// Close stops housekeeping and the async worker, flushes and closes the
// store, and drops the instance from the intern table. No completion
// callback fires after Close returns.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return nil
	}
	dc.closed = true
	dc.mu.Unlock()

	if dc.hkName != "" {
		hk.Unreg(dc.hkName)
	}
	dc.worker.stop()

	internMtx.Lock()
	delete(interned, dc.path)
	internMtx.Unlock()

	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.store.Close()
}

///////////////////
// access (sync) //
///////////////////

// Contains reports whether key exists on disk.
func (dc *DiskCache) Contains(key string) bool {
	if key == "" {
		return false
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.store.Contains(key)
}

// GetValue returns the raw stored bytes.
func (dc *DiskCache) GetValue(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	dc.mu.Lock()
	value, err := dc.store.GetValue(key)
	dc.mu.Unlock()
	if err != nil {
		dc.logMiss(key, err)
		return nil, false
	}
	return value, true
}

// Get returns the unarchived object stored under key.
func (dc *DiskCache) Get(key string) (interface{}, bool) {
	obj, _, ok := dc.getObject(key)
	return obj, ok
}

// getObject additionally reports the encoded size, which the two-tier
// facade uses as the memory cost of a promoted entry.
func (dc *DiskCache) getObject(key string) (obj interface{}, size int64, ok bool) {
	if key == "" || dc.config.Unarchive == nil {
		return nil, 0, false
	}
	dc.mu.Lock()
	item, err := dc.store.GetItem(key)
	dc.mu.Unlock()
	if err != nil {
		dc.logMiss(key, err)
		return nil, 0, false
	}
	obj, err = dc.config.Unarchive(item.Value)
	if err != nil {
		if dc.config.ErrorLogsEnabled {
			glog.Errorf("diskcache %s: unarchive %q: %v", dc.Name, key, err)
		}
		return nil, 0, false
	}
	if item.ExtendedData != nil {
		SetExtendedData(obj, item.ExtendedData)
	}
	return obj, item.Size, true
}

// SetValue stores raw bytes under key; a nil value removes the entry.
func (dc *DiskCache) SetValue(key string, value []byte) bool {
	if key == "" {
		return false
	}
	if value == nil {
		dc.Remove(key)
		return true
	}
	return dc.setValue(key, value, nil)
}

// Set archives obj (carrying any attached extended data along) and stores
// the result; a nil obj removes the entry.
func (dc *DiskCache) Set(key string, obj interface{}) bool {
	if key == "" {
		return false
	}
	if obj == nil {
		dc.Remove(key)
		return true
	}
	if dc.config.Archive == nil {
		return false
	}
	value, err := dc.config.Archive(obj)
	if err != nil {
		if dc.config.ErrorLogsEnabled {
			glog.Errorf("diskcache %s: archive %q: %v", dc.Name, key, err)
		}
		return false
	}
	return dc.setValue(key, value, GetExtendedData(obj))
}

func (dc *DiskCache) setValue(key string, value []byte, extendedData []byte) bool {
	var filename string
	if int64(len(value)) > dc.config.InlineThreshold {
		filename = dc.config.FileName(key)
	}
	dc.mu.Lock()
	err := dc.store.SaveWithFilename(key, value, filename, extendedData)
	dc.mu.Unlock()
	if err != nil {
		if dc.config.ErrorLogsEnabled {
			glog.Errorf("diskcache %s: save %q: %v", dc.Name, key, err)
		}
		return false
	}
	return true
}

// Remove deletes key from disk.
func (dc *DiskCache) Remove(key string) {
	if key == "" {
		return
	}
	dc.mu.Lock()
	err := dc.store.Remove(key)
	dc.mu.Unlock()
	if err != nil && dc.config.ErrorLogsEnabled {
		glog.Errorf("diskcache %s: remove %q: %v", dc.Name, key, err)
	}
}

// RemoveAll wipes the disk tier via trash-and-sweep.
func (dc *DiskCache) RemoveAll() {
	dc.mu.Lock()
	err := dc.store.RemoveAll()
	dc.mu.Unlock()
	if err != nil && dc.config.ErrorLogsEnabled {
		glog.Errorf("diskcache %s: remove all: %v", dc.Name, err)
	}
}

// RemoveAllWithProgress runs the row-by-row wipe on the background worker;
// progress fires after every removed entry, end once with the outcome.
func (dc *DiskCache) RemoveAllWithProgress(progress func(removed, total int64), end func(error)) {
	dc.dispatch(func() {
		dc.mu.Lock()
		defer dc.mu.Unlock()
		dc.store.RemoveAllWithProgress(progress, end)
	})
}

// TotalCount returns the number of entries, -1 on error.
func (dc *DiskCache) TotalCount() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.store.Count()
}

// TotalCost returns the stored bytes, -1 on error.
func (dc *DiskCache) TotalCost() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.store.Size()
}

//////////
// trim //
//////////

// TrimToCount removes LRU entries until at most count remain.
func (dc *DiskCache) TrimToCount(count int64) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.store.TrimToCount(count)
}

// TrimToCost removes LRU entries until at most cost bytes remain.
func (dc *DiskCache) TrimToCost(cost int64) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.store.TrimToSize(cost)
}

// TrimToAge removes every entry not accessed within age.
func (dc *DiskCache) TrimToAge(age time.Duration) {
	if age <= 0 {
		dc.RemoveAll()
		return
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.store.RemoveEarlierThan(time.Now().Add(-age).Unix())
}

// housekeep applies the configured limits in sequence: count, cost, age,
// then the free-disk-space floor.
func (dc *DiskCache) housekeep() time.Duration {
	dc.mu.Lock()
	closed := dc.closed
	dc.mu.Unlock()
	if closed {
		return time.Hour
	}
	if limit := dc.config.CountLimit; limit > 0 {
		dc.TrimToCount(limit)
	}
	if limit := dc.config.CostLimit; limit > 0 {
		dc.TrimToCost(limit)
	}
	if limit := dc.config.AgeLimit; limit > 0 {
		dc.TrimToAge(limit)
	}
	if limit := dc.config.FreeDiskSpaceLimit; limit > 0 {
		free, err := cmn.FSFree(dc.path)
		if err == nil && free < limit {
			if count := dc.TotalCount(); count > 0 {
				dc.TrimToCount(count / 2)
			}
		}
	}
	return dc.config.AutoTrimInterval
}

func (dc *DiskCache) logMiss(key string, err error) {
	if !cmn.IsNotFound(err) && dc.config.ErrorLogsEnabled {
		glog.Errorf("diskcache %s: get %q: %v", dc.Name, key, err)
	}
}

func (dc *DiskCache) dispatch(f func()) {
	if !dc.worker.dispatch(f) && dc.config.ErrorLogsEnabled {
		glog.Warningf("diskcache %s: dropped async op after close", dc.Name)
	}
}
