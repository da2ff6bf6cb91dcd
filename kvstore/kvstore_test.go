// Package kvstore implements a single-writer key-value store backed by a
// SQLite manifest and a directory of content files.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package kvstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, typ StorageType) *Store {
	s, err := Open(t.TempDir(), typ)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// setAccessTime backdates an entry to a fixed unix timestamp; tests use it
// to construct deterministic LRU orderings.
func setAccessTime(t *testing.T, s *Store, key string, ts int64) {
	_, err := s.db.Exec("UPDATE manifest SET last_access_time = ? WHERE key = ?;", ts, key)
	require.NoError(t, err)
}

func listDataFiles(t *testing.T, s *Store) []string {
	entries, err := os.ReadDir(s.dataDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openStore(t, TypeMixed)

	before := time.Now().Unix()
	item := &Item{
		Key:          "k",
		Value:        []byte("payload"),
		ExtendedData: []byte("sidecar"),
	}
	require.NoError(t, s.SaveItem(item))

	got, err := s.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, []byte("payload"), got.Value)
	assert.Equal(t, []byte("sidecar"), got.ExtendedData)
	assert.Empty(t, got.Filename)
	assert.EqualValues(t, 7, got.Size)
	assert.GreaterOrEqual(t, got.ModTime, before)
	assert.GreaterOrEqual(t, got.AccessTime, before)
}

func TestInlineExternalRouting(t *testing.T) {
	s := openStore(t, TypeMixed)

	small := bytes.Repeat([]byte{'a'}, 100)
	large := bytes.Repeat([]byte{'b'}, 4096)
	require.NoError(t, s.Save("a", small))
	require.NoError(t, s.SaveWithFilename("b", large, "b.bin", nil))

	// inline row, no file
	info, err := s.GetItemInfo("a")
	require.NoError(t, err)
	assert.Empty(t, info.Filename)
	assert.NotContains(t, listDataFiles(t, s), "a")

	// external file, metadata-only row
	info, err = s.GetItemInfo("b")
	require.NoError(t, err)
	assert.Equal(t, "b.bin", info.Filename)
	_, err = os.Stat(filepath.Join(s.dataDir, "b.bin"))
	require.NoError(t, err)
	var inline []byte
	require.NoError(t,
		s.db.QueryRow("SELECT inline_data FROM manifest WHERE key = 'b';").Scan(&inline))
	assert.Nil(t, inline)

	assert.EqualValues(t, 4196, s.Size())
	value, err := s.GetValue("b")
	require.NoError(t, err)
	assert.Equal(t, large, value)
}

func TestTypeLegality(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		s := openStore(t, TypeFile)
		assert.ErrorIs(t, s.Save("k", []byte("v")), cmn.ErrFilenameRequired)
		require.NoError(t, s.SaveWithFilename("k", []byte("v"), "k.bin", nil))
		var inline []byte
		require.NoError(t,
			s.db.QueryRow("SELECT inline_data FROM manifest WHERE key = 'k';").Scan(&inline))
		assert.Nil(t, inline, "file-type store must not hold blobs")
	})
	t.Run("sqlite", func(t *testing.T) {
		s := openStore(t, TypeSQLite)
		require.NoError(t, s.SaveWithFilename("k", []byte("v"), "ignored.bin", nil))
		info, err := s.GetItemInfo("k")
		require.NoError(t, err)
		assert.Empty(t, info.Filename, "sqlite-type store must not reference files")
		assert.Empty(t, listDataFiles(t, s))
	})
}

func TestSaveValidation(t *testing.T) {
	s := openStore(t, TypeMixed)
	assert.ErrorIs(t, s.Save("", []byte("v")), cmn.ErrInvalidKey)
	assert.ErrorIs(t, s.Save("k", nil), cmn.ErrInvalidValue)
	_, err := s.GetItem("")
	assert.ErrorIs(t, err, cmn.ErrInvalidKey)
}

func TestUpsertReplacesStaleFile(t *testing.T) {
	s := openStore(t, TypeMixed)

	require.NoError(t, s.SaveWithFilename("k", []byte("one"), "f1.bin", nil))
	require.NoError(t, s.SaveWithFilename("k", []byte("two"), "f2.bin", nil))
	assert.Equal(t, []string{"f2.bin"}, listDataFiles(t, s))

	// switching back to inline drops the external file as well
	require.NoError(t, s.Save("k", []byte("three")))
	assert.Empty(t, listDataFiles(t, s))
	value, err := s.GetValue("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), value)
	assert.EqualValues(t, 1, s.Count())
}

func TestBatchGets(t *testing.T) {
	s := openStore(t, TypeMixed)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	items, err := s.GetItems([]string{"k3", "missing", "k1", "k4"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "k3", items[0].Key) // input order, absent keys skipped
	assert.Equal(t, "k1", items[1].Key)
	assert.Equal(t, "k4", items[2].Key)

	values, err := s.GetValues([]string{"k0", "k2", "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k0": {0}, "k2": {2}}, values)
}

func TestAccessTimeRefresh(t *testing.T) {
	s := openStore(t, TypeMixed)
	require.NoError(t, s.Save("k", []byte("v")))
	setAccessTime(t, s, "k", 1)

	_, err := s.GetValue("k")
	require.NoError(t, err)
	s.flushAccessBuf()

	info, err := s.GetItemInfo("k")
	require.NoError(t, err)
	assert.Greater(t, info.AccessTime, int64(1), "read must refresh last_access_time")
}

func TestTrimToSize(t *testing.T) {
	s := openStore(t, TypeMixed)
	payload := bytes.Repeat([]byte{'x'}, 100)
	for i := 1; i <= 10; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, s.Save(key, payload))
		setAccessTime(t, s, key, int64(i))
	}

	require.NoError(t, s.TrimToSize(500))
	assert.EqualValues(t, 5, s.Count())
	assert.EqualValues(t, 500, s.Size())
	for i := 1; i <= 5; i++ {
		assert.False(t, s.Contains(fmt.Sprintf("k%d", i)))
	}
	for i := 6; i <= 10; i++ {
		assert.True(t, s.Contains(fmt.Sprintf("k%d", i)))
	}
}

func TestTrimToCount(t *testing.T) {
	s := openStore(t, TypeMixed)
	for i := 1; i <= 40; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, s.SaveWithFilename(key, []byte("v"), key+".bin", nil))
		setAccessTime(t, s, key, int64(i))
	}

	require.NoError(t, s.TrimToCount(3))
	assert.EqualValues(t, 3, s.Count())
	assert.ElementsMatch(t, []string{"k38.bin", "k39.bin", "k40.bin"}, listDataFiles(t, s))
}

func TestRemoveLargerThan(t *testing.T) {
	s := openStore(t, TypeMixed)
	require.NoError(t, s.Save("small", bytes.Repeat([]byte{'s'}, 10)))
	require.NoError(t, s.SaveWithFilename("big", bytes.Repeat([]byte{'b'}, 1000), "big.bin", nil))

	require.NoError(t, s.RemoveLargerThan(100))
	assert.True(t, s.Contains("small"))
	assert.False(t, s.Contains("big"))
	assert.Empty(t, listDataFiles(t, s))
}

func TestRemoveEarlierThan(t *testing.T) {
	s := openStore(t, TypeMixed)
	require.NoError(t, s.Save("old", []byte("v")))
	require.NoError(t, s.Save("new", []byte("v")))
	setAccessTime(t, s, "old", 100)
	setAccessTime(t, s, "new", 200)

	require.NoError(t, s.RemoveEarlierThan(150))
	assert.False(t, s.Contains("old"))
	assert.True(t, s.Contains("new"))
}

func TestSelfHeal(t *testing.T) {
	s := openStore(t, TypeMixed)
	require.NoError(t, s.SaveWithFilename("k", []byte("v"), "k.bin", nil))
	require.NoError(t, os.Remove(filepath.Join(s.dataDir, "k.bin")))

	_, err := s.GetItem("k")
	assert.ErrorIs(t, err, cmn.ErrNotFound)
	assert.False(t, s.Contains("k"), "row referencing a missing file must be healed away")
}

func TestCrashOrphanSweep(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, TypeMixed)
	require.NoError(t, err)
	require.NoError(t, s.SaveWithFilename("live", []byte("v"), "live.bin", nil))
	require.NoError(t, s.Close())

	// simulate a crash after file write but before row commit
	orphan := filepath.Join(dir, DataDir, "crashed.bin")
	require.NoError(t, os.WriteFile(orphan, []byte("torn"), 0o644))

	s, err = Open(dir, TypeMixed)
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		_, err := os.Stat(orphan)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond, "orphan must be swept at open")
	_, err = s.GetItem("crashed")
	assert.ErrorIs(t, err, cmn.ErrNotFound)
	value, err := s.GetValue("live")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestRemoveAll(t *testing.T) {
	s := openStore(t, TypeMixed)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i)
		if i%10 == 0 {
			require.NoError(t, s.SaveWithFilename(key, []byte("external"), key+".bin", nil))
		} else {
			require.NoError(t, s.Save(key, []byte("inline")))
		}
	}
	require.EqualValues(t, 1000, s.Count())

	start := time.Now()
	require.NoError(t, s.RemoveAll())
	elapsed := time.Since(start)

	assert.EqualValues(t, 0, s.Count())
	assert.Empty(t, listDataFiles(t, s))
	assert.Less(t, elapsed, 2*time.Second, "wipe must not scale with entry count on the caller")

	// the background sweeper eventually empties trash/
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(s.trashDir)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 50*time.Millisecond)

	// store remains usable
	require.NoError(t, s.Save("fresh", []byte("v")))
	assert.True(t, s.Contains("fresh"))
}

func TestRemoveAllWithProgress(t *testing.T) {
	s := openStore(t, TypeMixed)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Save(fmt.Sprintf("k%d", i), []byte("v")))
	}

	var (
		calls     int64
		lastTotal int64
		endErr    = fmt.Errorf("sentinel")
	)
	s.RemoveAllWithProgress(
		func(removed, total int64) {
			calls++
			require.Equal(t, calls, removed)
			lastTotal = total
		},
		func(err error) { endErr = err },
	)
	assert.NoError(t, endErr)
	assert.EqualValues(t, 50, calls)
	assert.EqualValues(t, 50, lastTotal)
	assert.EqualValues(t, 0, s.Count())
}

func TestReopenTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, TypeSQLite)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(dir, TypeFile)
	assert.ErrorIs(t, err, cmn.ErrTypeMismatch)

	s, err = Open(dir, TypeSQLite)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestAggregatesAfterClose(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, TypeMixed)
	require.NoError(t, err)
	require.NoError(t, s.Save("k", []byte("v")))
	require.NoError(t, s.Close())
	assert.EqualValues(t, -1, s.Count())
	assert.ErrorIs(t, s.Save("k2", []byte("v")), cmn.ErrStoreClosed)
}
