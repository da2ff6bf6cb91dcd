// Package kvstore implements a single-writer key-value store backed by a
// SQLite manifest and a directory of content files.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package kvstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/pkg/errors"
)

// Every entry has a manifest row; the value bytes live either inline in the
// row (inline_data) or in a separate file under data/ named by the entry's
// filename. Which of the two forms is legal is fixed by the storage type,
// chosen once when the directory is created.
//
// A Store instance is *not* safe for concurrent use - callers serialize
// (the cache facade owns a per-path mutex). Background sweeps spawned by
// the store itself only touch files, never the open statements, and
// re-check the manifest before unlinking.

const (
	// ManifestDB is the SQLite database file name inside a store directory.
	ManifestDB = "manifest.sqlite"
	// DataDir holds external value files, one per item.
	DataDir = "data"
	// TrashDir stages wholesale deletions swept by a background worker.
	TrashDir = "trash"
	// metaFname records the storage type the directory was created with.
	metaFname = "kvstore.json"

	// trimBatch bounds the number of LRU rows selected (and deleted)
	// per trim iteration.
	trimBatch = 16
	// accessBatch bounds the buffered last_access_time refreshes.
	accessBatch = 16
)

type (
	// StorageType selects where values live: always in files, always in
	// the manifest, or per-item (filename present => external).
	StorageType int

	// Item is a single key-value entry together with its metadata.
	Item struct {
		Key          string `json:"key"`
		Value        []byte `json:"-"`
		Filename     string `json:"filename,omitempty"`
		Size         int64  `json:"size"`
		ModTime      int64  `json:"modification_time"`
		AccessTime   int64  `json:"last_access_time"`
		ExtendedData []byte `json:"extended_data,omitempty"`
	}

	accessRef struct {
		key string
		ts  int64
	}

	Store struct {
		// ErrorLogsEnabled turns on glog output for IO and SQL failures.
		ErrorLogsEnabled bool

		path     string
		typ      StorageType
		dataDir  string
		trashDir string

		db    *sql.DB
		stmts map[string]*sql.Stmt

		accessBuf []accessRef
		sweepers  sync.WaitGroup
		closed    bool
	}
)

const (
	// TypeFile stores every value as a file; rows hold metadata only.
	TypeFile StorageType = iota
	// TypeSQLite stores every value inline in its manifest row.
	TypeSQLite
	// TypeMixed stores per item: external when a filename is given,
	// inline otherwise.
	TypeMixed
)

func (t StorageType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeSQLite:
		return "sqlite"
	case TypeMixed:
		return "mixed"
	}
	return "invalid"
}

// Open creates (or reopens) the store rooted at path. The storage type is
// recorded on first creation; reopening with a different type fails.
func Open(path string, typ StorageType) (*Store, error) {
	if typ < TypeFile || typ > TypeMixed {
		return nil, errors.Errorf("kvstore: invalid storage type %d", typ)
	}
	s := &Store{
		path:     path,
		typ:      typ,
		dataDir:  filepath.Join(path, DataDir),
		trashDir: filepath.Join(path, TrashDir),
		stmts:    make(map[string]*sql.Stmt),
	}
	if err := cmn.CreateDir(s.dataDir); err != nil {
		return nil, errors.Wrap(err, "kvstore: create data dir")
	}
	if err := cmn.CreateDir(s.trashDir); err != nil {
		return nil, errors.Wrap(err, "kvstore: create trash dir")
	}
	if err := s.loadOrPersistMeta(); err != nil {
		return nil, err
	}
	if err := s.openDB(); err != nil {
		return nil, err
	}
	s.sweepOrphans()
	s.sweepTrash()
	return s, nil
}

// Path returns the directory this store owns.
func (s *Store) Path() string { return s.path }

// Type returns the storage type the directory was created with.
func (s *Store) Type() StorageType { return s.typ }

// Close flushes buffered access refreshes, closes the database and waits
// for background sweeps.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.flushAccessBuf()
	err := s.closeDB()
	s.sweepers.Wait()
	return err
}

//////////
// save //
//////////

// SaveItem upserts item.Key with item.Value, item.Filename and
// item.ExtendedData; remaining fields are ignored on input.
func (s *Store) SaveItem(item *Item) error {
	return s.save(item.Key, item.Value, item.Filename, item.ExtendedData)
}

// Save upserts an inline entry; it fails in a file-type store.
func (s *Store) Save(key string, value []byte) error {
	return s.save(key, value, "", nil)
}

// SaveWithFilename upserts an entry, storing the value externally when
// filename is non-empty (mandatory for file-type stores, ignored for
// sqlite-type ones).
func (s *Store) SaveWithFilename(key string, value []byte, filename string, extended []byte) error {
	return s.save(key, value, filename, extended)
}

func (s *Store) save(key string, value []byte, filename string, extended []byte) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if key == "" {
		return cmn.ErrInvalidKey
	}
	if len(value) == 0 {
		return cmn.ErrInvalidValue
	}
	switch s.typ {
	case TypeFile:
		if filename == "" {
			return cmn.ErrFilenameRequired
		}
	case TypeSQLite:
		filename = ""
	}
	s.flushAccessBuf()

	external := filename != ""
	if external {
		if err := s.writeDataFile(filename, value); err != nil {
			return err
		}
	}

	// remember a possibly different external file of the row being replaced
	var prevFilename string
	row := s.queryRow("SELECT filename FROM manifest WHERE key = ?;", key)
	if row != nil {
		var fname sql.NullString
		if err := row.Scan(&fname); err == nil && fname.Valid {
			prevFilename = fname.String
		}
	}

	var (
		now    = time.Now().Unix()
		inline interface{}
		fname  interface{}
	)
	if external {
		fname = filename
	} else {
		inline = value
	}
	err := s.exec(
		"INSERT OR REPLACE INTO manifest (key, filename, size, inline_data, modification_time, last_access_time, extended_data) VALUES (?, ?, ?, ?, ?, ?, ?);",
		key, fname, int64(len(value)), inline, now, now, nullableBlob(extended),
	)
	if err != nil {
		if external {
			// compensate: do not leave an orphan behind a failed commit
			if nerr := cmn.RemoveFile(filepath.Join(s.dataDir, filename)); nerr != nil {
				s.logErr("save: compensating remove", nerr)
			}
		}
		return errors.Wrap(err, "kvstore: save")
	}
	if prevFilename != "" && prevFilename != filename {
		if nerr := cmn.RemoveFile(filepath.Join(s.dataDir, prevFilename)); nerr != nil {
			s.logErr("save: stale file remove", nerr)
		}
	}
	return nil
}

/////////
// get //
/////////

// GetItem returns the full entry including its value bytes. A row whose
// external file went missing is deleted (self-heal) and reported as not
// found.
func (s *Store) GetItem(key string) (*Item, error) {
	return s.getItem(key, true)
}

// GetItemInfo returns the entry metadata only; no file IO.
func (s *Store) GetItemInfo(key string) (*Item, error) {
	return s.getItem(key, false)
}

// GetValue returns only the value bytes.
func (s *Store) GetValue(key string) ([]byte, error) {
	item, err := s.getItem(key, true)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// GetItems returns the entries for the given keys in input order; absent
// keys are skipped.
func (s *Store) GetItems(keys []string) ([]*Item, error) {
	return s.getItems(keys, true)
}

// GetItemInfos is the metadata-only batch variant of GetItems.
func (s *Store) GetItemInfos(keys []string) ([]*Item, error) {
	return s.getItems(keys, false)
}

// GetValues returns a key => value mapping for the keys that exist.
func (s *Store) GetValues(keys []string) (map[string][]byte, error) {
	items, err := s.getItems(keys, true)
	if err != nil {
		return nil, err
	}
	m := make(map[string][]byte, len(items))
	for _, item := range items {
		m[item.Key] = item.Value
	}
	return m, nil
}

func (s *Store) getItem(key string, withValue bool) (*Item, error) {
	if s.closed {
		return nil, cmn.ErrStoreClosed
	}
	if key == "" {
		return nil, cmn.ErrInvalidKey
	}
	query := "SELECT key, filename, size, modification_time, last_access_time, extended_data FROM manifest WHERE key = ?;"
	if withValue {
		query = "SELECT key, filename, size, inline_data, modification_time, last_access_time, extended_data FROM manifest WHERE key = ?;"
	}
	row := s.queryRow(query, key)
	if row == nil {
		return nil, errors.New("kvstore: statement prepare failed")
	}
	item, err := scanItem(row, withValue)
	if err == sql.ErrNoRows {
		return nil, cmn.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: get")
	}
	if withValue && item.Filename != "" {
		value, err := s.readDataFile(item.Filename)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				s.selfHeal(key, item.Filename)
				return nil, cmn.ErrNotFound
			}
			return nil, err
		}
		item.Value = value
	}
	s.touch(key)
	return item, nil
}

func (s *Store) getItems(keys []string, withValue bool) ([]*Item, error) {
	items := make([]*Item, 0, len(keys))
	for _, key := range keys {
		item, err := s.getItem(key, withValue)
		if err != nil {
			if cmn.IsNotFound(err) || errors.Is(err, cmn.ErrInvalidKey) {
				continue
			}
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Contains reports whether a row exists for key; no access-time refresh.
func (s *Store) Contains(key string) bool {
	if s.closed || key == "" {
		return false
	}
	row := s.queryRow("SELECT 1 FROM manifest WHERE key = ?;", key)
	if row == nil {
		return false
	}
	var one int
	return row.Scan(&one) == nil
}

// selfHeal drops a manifest row whose backing file disappeared.
func (s *Store) selfHeal(key, filename string) {
	if s.ErrorLogsEnabled {
		glog.Warningf("kvstore %s: missing file %q for key %q - healing", s.path, filename, key)
	}
	if err := s.exec("DELETE FROM manifest WHERE key = ?;", key); err != nil {
		s.logErr("self-heal", err)
	}
}

////////////////
// aggregates //
////////////////

// Count returns the total number of entries, -1 on error.
func (s *Store) Count() int64 {
	return s.aggregate("SELECT COUNT(*) FROM manifest;")
}

// Size returns the total value bytes across all entries, -1 on error.
func (s *Store) Size() int64 {
	return s.aggregate("SELECT COALESCE(SUM(size), 0) FROM manifest;")
}

func (s *Store) aggregate(query string) int64 {
	if s.closed {
		return -1
	}
	s.flushAccessBuf()
	row := s.queryRow(query)
	if row == nil {
		return -1
	}
	var v int64
	if err := row.Scan(&v); err != nil {
		s.logErr("aggregate", err)
		return -1
	}
	return v
}

func scanItem(row *sql.Row, withValue bool) (*Item, error) {
	var (
		item     Item
		filename sql.NullString
		inline   []byte
		extended []byte
		err      error
	)
	if withValue {
		err = row.Scan(&item.Key, &filename, &item.Size, &inline, &item.ModTime, &item.AccessTime, &extended)
	} else {
		err = row.Scan(&item.Key, &filename, &item.Size, &item.ModTime, &item.AccessTime, &extended)
	}
	if err != nil {
		return nil, err
	}
	if filename.Valid {
		item.Filename = filename.String
	}
	item.Value = inline
	item.ExtendedData = extended
	return &item, nil
}

func nullableBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (s *Store) logErr(op string, err error) {
	if s.ErrorLogsEnabled && err != nil {
		glog.Errorf("kvstore %s: %s: %v", s.path, op, err)
	}
}
