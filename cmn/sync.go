// Package cmn provides common low-level types and utilities for all kvcache packages
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package cmn

import (
	"sync"
)

// StopCh is specialized channel for stopping things.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

func NewStopCh() *StopCh {
	return &StopCh{
		ch: make(chan struct{}, 1),
	}
}

func (sc *StopCh) Listen() <-chan struct{} {
	return sc.ch
}

// Close is idempotent.
func (sc *StopCh) Close() {
	sc.once.Do(func() {
		close(sc.ch)
	})
}
