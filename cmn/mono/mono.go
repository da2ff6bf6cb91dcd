// Package mono provides a monotonic clock: nanoseconds elapsed since process start.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package mono

import "time"

var started = time.Now()

// NanoTime returns the number of nanoseconds since process start.
// The value never goes backwards and is unaffected by wall-clock adjustments.
func NanoTime() int64 { return int64(time.Since(started)) }

// Seconds returns the monotonic clock truncated to seconds.
func Seconds() int64 { return NanoTime() / int64(time.Second) }

// Since returns the time elapsed since a prior NanoTime reading.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
