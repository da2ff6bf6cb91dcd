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

	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/pkg/errors"
)

// Remove deletes the entry and, when external, its backing file.
func (s *Store) Remove(key string) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if key == "" {
		return cmn.ErrInvalidKey
	}
	s.flushAccessBuf()
	var filename sql.NullString
	row := s.queryRow("SELECT filename FROM manifest WHERE key = ?;", key)
	if row != nil {
		if err := row.Scan(&filename); err != nil && err != sql.ErrNoRows {
			return errors.Wrap(err, "kvstore: remove")
		}
	}
	if filename.Valid {
		s.removeDataFile(filename.String)
	}
	return s.exec("DELETE FROM manifest WHERE key = ?;", key)
}

// RemoveKeys deletes a batch of entries; it keeps going past per-key
// failures and reports the first error encountered.
func (s *Store) RemoveKeys(keys []string) (err error) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if rerr := s.Remove(key); rerr != nil && err == nil {
			err = rerr
		}
	}
	return
}

// RemoveLargerThan deletes every entry whose value is larger than size
// bytes, external files first.
func (s *Store) RemoveLargerThan(size int64) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if size <= 0 {
		return s.RemoveAll()
	}
	s.flushAccessBuf()
	if err := s.removeFilesWhere("size > ?", size); err != nil {
		return err
	}
	return s.exec("DELETE FROM manifest WHERE size > ?;", size)
}

// RemoveEarlierThan deletes every entry last accessed before the given
// unix timestamp.
func (s *Store) RemoveEarlierThan(ts int64) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if ts <= 0 {
		return nil
	}
	s.flushAccessBuf()
	if err := s.removeFilesWhere("last_access_time < ?", ts); err != nil {
		return err
	}
	return s.exec("DELETE FROM manifest WHERE last_access_time < ?;", ts)
}

// removeFilesWhere unlinks the external files of all rows matching cond
// before their rows are deleted.
func (s *Store) removeFilesWhere(cond string, arg int64) error {
	if s.typ == TypeSQLite {
		return nil
	}
	rows, err := s.query("SELECT filename FROM manifest WHERE filename IS NOT NULL AND "+cond+";", arg)
	if err != nil {
		return errors.Wrap(err, "kvstore: select files")
	}
	defer rows.Close()
	for rows.Next() {
		var filename string
		if rows.Scan(&filename) == nil {
			s.removeDataFile(filename)
		}
	}
	return rows.Err()
}

//////////
// trim //
//////////

// TrimToSize evicts least-recently-accessed entries until the total value
// size is at most target bytes.
func (s *Store) TrimToSize(target int64) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if target <= 0 {
		return s.RemoveAll()
	}
	total := s.Size()
	if total < 0 {
		return errors.New("kvstore: size query failed")
	}
	return s.trim(target, &total, func(victim *Item) { total -= victim.Size })
}

// TrimToCount evicts least-recently-accessed entries until at most target
// entries remain.
func (s *Store) TrimToCount(target int64) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	if target <= 0 {
		return s.RemoveAll()
	}
	total := s.Count()
	if total < 0 {
		return errors.New("kvstore: count query failed")
	}
	return s.trim(target, &total, func(*Item) { total-- })
}

// trim deletes LRU batches of trimBatch rows (files first) until the
// aggregate tracked by the caller drops to the target.
func (s *Store) trim(target int64, total *int64, account func(*Item)) error {
	for *total > target {
		victims, err := s.lruBatch()
		if err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}
		for _, victim := range victims {
			s.removeDataFile(victim.Filename)
			if err := s.exec("DELETE FROM manifest WHERE key = ?;", victim.Key); err != nil {
				return err
			}
			account(victim)
			if *total <= target {
				return nil
			}
		}
	}
	return nil
}

// lruBatch returns up to trimBatch least-recently-accessed entries.
func (s *Store) lruBatch() ([]*Item, error) {
	rows, err := s.query(
		"SELECT key, filename, size FROM manifest ORDER BY last_access_time ASC LIMIT ?;", trimBatch)
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: lru batch")
	}
	defer rows.Close()
	victims := make([]*Item, 0, trimBatch)
	for rows.Next() {
		var (
			item     Item
			filename sql.NullString
		)
		if err := rows.Scan(&item.Key, &filename, &item.Size); err != nil {
			return victims, err
		}
		if filename.Valid {
			item.Filename = filename.String
		}
		victims = append(victims, &item)
	}
	return victims, rows.Err()
}

////////////////
// remove all //
////////////////

// RemoveAll wipes the store in O(1) on the calling thread: the data
// directory and the SQLite files are renamed into a unique trash entry,
// empty replacements are created, and a background sweeper deletes the
// trash contents.
func (s *Store) RemoveAll() error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	s.accessBuf = s.accessBuf[:0]
	if err := s.closeDB(); err != nil {
		s.logErr("remove all: close db", err)
	}

	staging := filepath.Join(s.trashDir, cmn.GenUUID())
	if err := cmn.CreateDir(staging); err != nil {
		return errors.Wrap(err, "kvstore: create trash entry")
	}
	if err := os.Rename(s.dataDir, filepath.Join(staging, DataDir)); err != nil {
		return errors.Wrap(err, "kvstore: trash data dir")
	}
	for _, suffix := range []string{"", "-shm", "-wal"} {
		name := ManifestDB + suffix
		err := os.Rename(filepath.Join(s.path, name), filepath.Join(staging, name))
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "kvstore: trash manifest")
		}
	}

	if err := cmn.CreateDir(s.dataDir); err != nil {
		return errors.Wrap(err, "kvstore: recreate data dir")
	}
	if err := s.openDB(); err != nil {
		return err
	}
	s.sweepTrash()
	return nil
}

// RemoveAllWithProgress is the row-by-row variant of RemoveAll: progress,
// when non-nil, is invoked after every deleted entry; end, when non-nil,
// receives the overall outcome.
func (s *Store) RemoveAllWithProgress(progress func(removed, total int64), end func(error)) {
	err := s.removeAllRows(progress)
	if end != nil {
		end(err)
	}
}

func (s *Store) removeAllRows(progress func(removed, total int64)) error {
	if s.closed {
		return cmn.ErrStoreClosed
	}
	total := s.Count()
	if total < 0 {
		return errors.New("kvstore: count query failed")
	}
	var removed int64
	for {
		victims, err := s.lruBatch()
		if err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}
		for _, victim := range victims {
			s.removeDataFile(victim.Filename)
			if err := s.exec("DELETE FROM manifest WHERE key = ?;", victim.Key); err != nil {
				return err
			}
			removed++
			if progress != nil {
				progress(removed, total)
			}
		}
	}
}
