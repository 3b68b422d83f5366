/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key admission control for incoming requests.
//
// FixedWindowLimiter is the default algorithm: every key owns a counter and the instant its
// current window ends. The first request after the window ends starts a new window with count 1.
// Because windows are fixed, a burst straddling a window boundary may admit up to twice the limit.
// SlidingWindowLimiter, LeakyBucketLimiter, and TokenBucketLimiter smooth that boundary out,
// and RedisFixedWindowLimiter shares fixed-window counters between several service instances.
//
// All limiters implement Limiter. Limiters that can also report the remaining quota
// implement QuotaLimiter.
package ratelimit
