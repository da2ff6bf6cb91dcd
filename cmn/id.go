// Package cmn provides common low-level types and utilities for all kvcache packages
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cmn

import (
	"sync"

	"github.com/teris-io/shortid"
)

var (
	sid     *shortid.Shortid
	sidOnce sync.Once
)

// GenUUID returns a unique short identifier, suitable for naming
// trash-directory entries and background tasks.
func GenUUID() string {
	sidOnce.Do(func() {
		sid = shortid.MustNew(1, shortid.DefaultABC, 2972)
	})
	id, err := sid.Generate()
	if err != nil {
		return shortid.MustGenerate()
	}
	return id
}
