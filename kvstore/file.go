// Package kvstore implements a single-writer key-value store backed by a
// SQLite manifest and a directory of content files.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package kvstore

import (
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/karrick/godirwalk"
	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/pkg/errors"
)

// writeDataFile writes value to data/<filename>, fsynced. A partial write
// never survives: on any error the file is removed before reporting.
func (s *Store) writeDataFile(filename string, value []byte) error {
	fqn := filepath.Join(s.dataDir, filename)
	fh, err := os.OpenFile(fqn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.logErr("write file", err)
		return errors.Wrap(err, "kvstore: create data file")
	}
	if _, err = fh.Write(value); err == nil {
		err = fh.Sync()
	}
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.logErr("write file", err)
		if nerr := cmn.RemoveFile(fqn); nerr != nil {
			s.logErr("write file cleanup", nerr)
		}
		return errors.Wrap(err, "kvstore: write data file")
	}
	return nil
}

func (s *Store) readDataFile(filename string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dataDir, filename))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logErr("read file", err)
		}
		return nil, errors.Wrap(err, "kvstore: read data file")
	}
	return b, nil
}

func (s *Store) removeDataFile(filename string) {
	if filename == "" {
		return
	}
	if err := cmn.RemoveFile(filepath.Join(s.dataDir, filename)); err != nil {
		s.logErr("remove file", err)
	}
}

////////////
// sweeps //
////////////

// sweepOrphans heals the aftermath of a crash between file write and row
// commit: files under data/ with no manifest row. The directory listing is
// taken synchronously at open time (before the store is handed out), the
// unlinking happens in the background; each candidate is re-checked
// against the manifest right before removal so a concurrent save reusing
// the same filename is never clobbered.
func (s *Store) sweepOrphans() {
	known := make(map[string]struct{})
	rows, err := s.query("SELECT filename FROM manifest WHERE filename IS NOT NULL;")
	if err != nil {
		return
	}
	for rows.Next() {
		var filename string
		if rows.Scan(&filename) == nil {
			known[filename] = struct{}{}
		}
	}
	rows.Close()

	var orphans []string
	err = godirwalk.Walk(s.dataDir, &godirwalk.Options{
		Callback: func(fqn string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if _, ok := known[filepath.Base(fqn)]; !ok {
				orphans = append(orphans, filepath.Base(fqn))
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		s.logErr("orphan scan", err)
		return
	}
	if len(orphans) == 0 {
		return
	}
	if s.ErrorLogsEnabled {
		glog.Warningf("kvstore %s: sweeping %d orphaned file(s)", s.path, len(orphans))
	}
	s.sweepers.Add(1)
	go func() {
		defer s.sweepers.Done()
		for _, filename := range orphans {
			if s.hasFilename(filename) {
				continue
			}
			cmn.RemoveFile(filepath.Join(s.dataDir, filename))
		}
	}()
}

// hasFilename is called from the orphan sweeper only; the single statement
// it runs is safe alongside the owner's serialized operations.
func (s *Store) hasFilename(filename string) bool {
	if s.db == nil {
		return false
	}
	var one int
	err := s.db.QueryRow("SELECT 1 FROM manifest WHERE filename = ?;", filename).Scan(&one)
	return err == nil
}

// sweepTrash asynchronously empties trash/ - both leftovers from a prior
// crash and entries staged by RemoveAll.
func (s *Store) sweepTrash() {
	entries, err := os.ReadDir(s.trashDir)
	if err != nil || len(entries) == 0 {
		return
	}
	s.sweepers.Add(1)
	go func() {
		defer s.sweepers.Done()
		for _, entry := range entries {
			fqn := filepath.Join(s.trashDir, entry.Name())
			if err := os.RemoveAll(fqn); err != nil {
				s.logErr("trash sweep", err)
			}
		}
	}()
}
