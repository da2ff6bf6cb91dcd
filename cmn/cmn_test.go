// Package cmn provides common low-level types and utilities for all kvcache packages
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cmn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestB2S(t *testing.T) {
	assert.Equal(t, "512B", B2S(512, 2))
	assert.Equal(t, "1.00KiB", B2S(KiB, 2))
	assert.Equal(t, "2.50MiB", B2S(5*MiB/2, 2))
	assert.Equal(t, "1.0GiB", B2S(GiB, 1))
}

func TestGenUUID(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := GenUUID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %q", id)
		seen[id] = struct{}{}
	}
}

func TestNormalizePath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, NormalizePath(dir), NormalizePath(dir+string(filepath.Separator)+"."))
	assert.True(t, filepath.IsAbs(NormalizePath("relative/path")))
}

func TestFSFree(t *testing.T) {
	free, err := FSFree(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))
}
