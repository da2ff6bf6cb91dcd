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
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// The manifest is a single table; both trims are driven by the secondary
// index on last_access_time, size-bound removal by the one on size.
const schema = `
CREATE TABLE IF NOT EXISTS manifest (
	key               TEXT PRIMARY KEY,
	filename          TEXT,
	size              INTEGER,
	inline_data       BLOB,
	modification_time INTEGER,
	last_access_time  INTEGER,
	extended_data     BLOB
);
CREATE INDEX IF NOT EXISTS idx_manifest_last_access ON manifest(last_access_time);
CREATE INDEX IF NOT EXISTS idx_manifest_size ON manifest(size);
`

func (s *Store) openDB() error {
	db, err := sql.Open("sqlite", filepath.Join(s.path, ManifestDB))
	if err != nil {
		return errors.Wrap(err, "kvstore: open manifest")
	}
	// single connection: the engine is single-writer and the prepared
	// statement cache below is per-connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return errors.Wrapf(err, "kvstore: %s", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return errors.Wrap(err, "kvstore: create schema")
	}
	s.db = db
	return nil
}

func (s *Store) closeDB() error {
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// stmt returns a cached prepared statement for the given SQL text,
// preparing and caching it on first use.
func (s *Store) stmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		s.logErr("prepare", err)
		return nil, errors.Wrapf(err, "kvstore: prepare %q", query)
	}
	s.stmts[query] = stmt
	return stmt, nil
}

func (s *Store) exec(query string, args ...interface{}) error {
	stmt, err := s.stmt(query)
	if err != nil {
		return err
	}
	if _, err := stmt.Exec(args...); err != nil {
		s.logErr("exec", err)
		return err
	}
	return nil
}

// queryRow returns nil when the statement cannot be prepared; the error is
// already logged.
func (s *Store) queryRow(query string, args ...interface{}) *sql.Row {
	stmt, err := s.stmt(query)
	if err != nil {
		return nil
	}
	return stmt.QueryRow(args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	stmt, err := s.stmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		s.logErr("query", err)
		return nil, err
	}
	return rows, nil
}

/////////////////////////
// access-time refresh //
/////////////////////////

// touch buffers a last_access_time refresh for the key; reads are hot and
// the write amplification is batched away (see flushAccessBuf).
func (s *Store) touch(key string) {
	s.accessBuf = append(s.accessBuf, accessRef{key: key, ts: time.Now().Unix()})
	if len(s.accessBuf) >= accessBatch {
		s.flushAccessBuf()
	}
}

// flushAccessBuf writes all buffered refreshes in one transaction. Every
// mutating operation calls it first, so LRU ordering observed by trims is
// current up to the in-flight buffer. A crash loses only the buffer.
func (s *Store) flushAccessBuf() {
	if len(s.accessBuf) == 0 || s.db == nil {
		return
	}
	buffered := s.accessBuf
	s.accessBuf = s.accessBuf[:0]

	tx, err := s.db.Begin()
	if err != nil {
		s.logErr("access flush", err)
		return
	}
	stmt, err := tx.Prepare("UPDATE manifest SET last_access_time = ? WHERE key = ?;")
	if err != nil {
		s.logErr("access flush", err)
		tx.Rollback()
		return
	}
	for _, ref := range buffered {
		if _, err := stmt.Exec(ref.ts, ref.key); err != nil {
			s.logErr("access flush", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		s.logErr("access flush", err)
	}
}

//////////////////
// storage meta //
//////////////////

type storeMeta struct {
	Type string `json:"type"`
}

// loadOrPersistMeta records the storage type on first creation and rejects
// reopening a directory with a different type.
func (s *Store) loadOrPersistMeta() error {
	metaPath := filepath.Join(s.path, metaFname)
	b, err := os.ReadFile(metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "kvstore: read meta")
		}
		meta := storeMeta{Type: s.typ.String()}
		if err := os.WriteFile(metaPath, cmn.MustMarshal(meta), 0o644); err != nil {
			return errors.Wrap(err, "kvstore: write meta")
		}
		return nil
	}
	var meta storeMeta
	if err := jsoniter.Unmarshal(b, &meta); err != nil {
		return errors.Wrap(err, "kvstore: parse meta")
	}
	if meta.Type != s.typ.String() {
		return errors.Wrapf(cmn.ErrTypeMismatch, "store %q created as %s, reopened as %s",
			s.path, meta.Type, s.typ)
	}
	return nil
}
