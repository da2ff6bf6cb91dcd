// Package cmn provides common low-level types and utilities for all kvcache packages
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Sentinel errors. NotFound is a normal miss, everything else is a real
// failure and gets logged when error logs are enabled.
var (
	ErrNotFound         = errors.New("entry not found")
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidValue     = errors.New("invalid value")
	ErrFilenameRequired = errors.New("filename required for file-type storage")
	ErrTypeMismatch     = errors.New("storage type mismatch")
	ErrStoreClosed      = errors.New("store is closed")
)

// IsNotFound tells a plain miss apart from a real failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// MustMarshal marshals v and panics if an error occurs.
func MustMarshal(v interface{}) []byte {
	b, err := jsoniter.Marshal(v)
	AssertNoErr(err)
	return b
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// B2S converts bytes to a human-readable string with the given precision.
func B2S(b int64, digits int) string {
	switch {
	case b >= GiB:
		return fmt.Sprintf("%.*fGiB", digits, float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.*fMiB", digits, float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.*fKiB", digits, float64(b)/float64(KiB))
	}
	return fmt.Sprintf("%dB", b)
}
