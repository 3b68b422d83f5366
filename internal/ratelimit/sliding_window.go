/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-blogapi/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// The previous window's count is weighted by its overlap with the sliding window,
// so a burst at a window boundary cannot exceed the limit.
type SlidingWindowLimiter struct {
	maxRate Rate
	store   *lrucache.LRUCache[string, *slidingwindow.Limiter]
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiterOpts represents options for SlidingWindowLimiter.
type SlidingWindowLimiterOpts struct {
	// MaxKeys bounds the number of tracked keys (LRU eviction). Zero means no bound.
	MaxKeys int

	// Clock is used to expire idle keys. time.Now is used if nil.
	Clock func() time.Time

	// MetricsCollector receives statistics about the key table. Metrics are disabled if nil.
	MetricsCollector lrucache.MetricsCollector
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter with a window per key.
// Zero maxKeys means the key store is unbounded.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	return NewSlidingWindowLimiterWithOpts(maxRate, SlidingWindowLimiterOpts{MaxKeys: maxKeys})
}

// NewSlidingWindowLimiterWithOpts creates a new sliding window rate limiter with options.
// A key idle for two windows has no effect on future decisions, so it expires and can be removed by Sweep.
func NewSlidingWindowLimiterWithOpts(maxRate Rate, opts SlidingWindowLimiterOpts) (*SlidingWindowLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	store, err := lrucache.NewWithOpts[string, *slidingwindow.Limiter](opts.MaxKeys, opts.MetricsCollector,
		lrucache.Options[string, *slidingwindow.Limiter]{DefaultTTL: 2 * maxRate.Duration, Clock: opts.Clock})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{maxRate: maxRate, store: store}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// For rejected requests, retryAfter is the time until the current window ends.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, exists := l.store.GetOrAdd(key, l.newKeyLimiter)
	if exists {
		// Refresh the idle deadline of an active key.
		l.store.Add(key, lim)
	}
	if lim.Allow() {
		return true, 0, nil
	}
	now := time.Now()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}

// Sweep removes keys that have been idle for two windows and returns how many were removed.
func (l *SlidingWindowLimiter) Sweep() int {
	return l.store.RemoveExpired()
}

func (l *SlidingWindowLimiter) newKeyLimiter() *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(
		l.maxRate.Duration, int64(l.maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return lim
}
