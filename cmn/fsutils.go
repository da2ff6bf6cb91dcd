// Package cmn provides common low-level types and utilities for all kvcache packages
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cmn

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CreateDir creates directory if it does not exist. If the directory
// already exists it is a no-op.
func CreateDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// RemoveFile removes a file and ignores the case when it is already gone.
func RemoveFile(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// FSStats returns total blocks, available blocks and block size of the
// filesystem holding the given path.
func FSStats(path string) (blocks, bavail uint64, bsize int64, err error) {
	var statfs unix.Statfs_t
	if err = unix.Statfs(path, &statfs); err != nil {
		return
	}
	return statfs.Blocks, statfs.Bavail, int64(statfs.Bsize), nil
}

// FSFree returns the number of bytes available to an unprivileged caller
// on the filesystem holding the given path.
func FSFree(path string) (int64, error) {
	_, bavail, bsize, err := FSStats(path)
	if err != nil {
		return 0, err
	}
	return int64(bavail) * bsize, nil
}

// NormalizePath resolves a path to its cleaned absolute form; used to key
// process-wide instance interning.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
