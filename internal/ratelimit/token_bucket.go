/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/acronis/go-blogapi/lrucache"
)

// TokenBucketLimiter keeps a golang.org/x/time/rate token bucket per key.
// Tokens are refilled continuously at Rate.Count per Rate.Duration and the bucket holds up to burst tokens.
type TokenBucketLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time
	store *lrucache.LRUCache[string, *rate.Limiter]
}

var _ Limiter = (*TokenBucketLimiter)(nil)

// TokenBucketLimiterOpts represents options for TokenBucketLimiter.
type TokenBucketLimiterOpts struct {
	// Burst is the bucket size. Rate.Count is used if zero.
	Burst int

	// MaxKeys bounds the number of tracked keys (LRU eviction). Zero means no bound.
	MaxKeys int

	// IdleTTL drops keys that have not been seen for this long.
	// If zero, it's the time an empty bucket takes to refill (see FullRefillDuration):
	// an idle key past it behaves exactly as a new one.
	IdleTTL time.Duration

	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time

	// MetricsCollector receives statistics about the key table. Metrics are disabled if nil.
	MetricsCollector lrucache.MetricsCollector
}

// FullRefillDuration returns how long an empty bucket of burst tokens takes to refill at maxRate.
func FullRefillDuration(maxRate Rate, burst int) time.Duration {
	if burst <= 0 {
		burst = maxRate.Count
	}
	return maxRate.Duration * time.Duration(burst) / time.Duration(maxRate.Count)
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
func NewTokenBucketLimiter(maxRate Rate, opts TokenBucketLimiterOpts) (*TokenBucketLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst should be >= 0, got %d", opts.Burst)
	}
	if opts.Burst == 0 {
		opts.Burst = maxRate.Count
	}
	if opts.IdleTTL < 0 {
		return nil, fmt.Errorf("idle TTL should be >= 0, got %s", opts.IdleTTL)
	}
	if opts.IdleTTL == 0 {
		opts.IdleTTL = FullRefillDuration(maxRate, opts.Burst)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	store, err := lrucache.NewWithOpts[string, *rate.Limiter](opts.MaxKeys, opts.MetricsCollector,
		lrucache.Options[string, *rate.Limiter]{DefaultTTL: opts.IdleTTL, Clock: opts.Clock})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &TokenBucketLimiter{
		limit: rate.Every(maxRate.Duration / time.Duration(maxRate.Count)),
		burst: opts.Burst,
		now:   opts.Clock,
		store: store,
	}, nil
}

// Allow takes a token from the key's bucket. If the bucket is empty, the request is rejected
// and retryAfter is the time until the next token is available.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, exists := l.store.GetOrAdd(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	if exists {
		// Refresh the idle deadline of an active key.
		l.store.Add(key, lim)
	}

	now := l.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Sweep removes keys that have been idle longer than IdleTTL and returns how many were removed.
func (l *TokenBucketLimiter) Sweep() int {
	return l.store.RemoveExpired()
}
