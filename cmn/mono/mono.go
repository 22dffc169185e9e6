// Package mono provides monotonic timestamps used for rate limiting,
// cache expiry, and log-flush scheduling.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// start anchors NanoTime; time.Since on it uses the monotonic clock
// reading time.Now() carries.
var start = time.Now()

// NanoTime returns a monotonic nanosecond timestamp, counted from process
// start. Unlike the original runtime.nanotime link-name trick, this goes
// through time.Now() so it stays portable across platforms the gateway is
// likely to run on; the monotonic reading is still cheap enough for the
// flush/expiry cadences this package is used for (low hundreds of calls
// per second, not per-op).
func NanoTime() int64 {
	return int64(time.Since(start))
}

// Since returns the duration elapsed since a NanoTime() reading.
func Since(t int64) time.Duration {
	return time.Duration(NanoTime() - t)
}
