/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-blogapi/lrucache"
)

// windowEntry is the per-key state. It is only accessed under FixedWindowLimiter.mu.
type windowEntry struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter counts requests per key in fixed windows of Rate.Duration
// and rejects requests beyond Rate.Count within one window.
type FixedWindowLimiter struct {
	rate Rate
	now  func() time.Time

	mu      sync.Mutex
	entries *lrucache.LRUCache[string, *windowEntry]
}

var _ QuotaLimiter = (*FixedWindowLimiter)(nil)

// FixedWindowLimiterOpts represents options for FixedWindowLimiter.
type FixedWindowLimiterOpts struct {
	// MaxKeys bounds the number of tracked keys. When the bound is hit, the least recently used key
	// is forgotten (its next request starts a new window). Zero means no bound.
	MaxKeys int

	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time

	// MetricsCollector receives statistics about the key table. Metrics are disabled if nil.
	MetricsCollector lrucache.MetricsCollector
}

// NewFixedWindowLimiter creates a new unbounded fixed window rate limiter.
func NewFixedWindowLimiter(rate Rate) (*FixedWindowLimiter, error) {
	return NewFixedWindowLimiterWithOpts(rate, FixedWindowLimiterOpts{})
}

// NewFixedWindowLimiterWithOpts creates a new fixed window rate limiter with options.
func NewFixedWindowLimiterWithOpts(rate Rate, opts FixedWindowLimiterOpts) (*FixedWindowLimiter, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	entries, err := lrucache.NewWithOpts[string, *windowEntry](
		opts.MaxKeys, opts.MetricsCollector, lrucache.Options[string, *windowEntry]{Clock: opts.Clock})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &FixedWindowLimiter{rate: rate, now: opts.Clock, entries: entries}, nil
}

// Decide registers a request for the key at the current time and returns the decision.
func (l *FixedWindowLimiter) Decide(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries.Get(key)
	if !ok || now.After(entry.resetAt) {
		entry = &windowEntry{count: 1, resetAt: now.Add(l.rate.Duration)}
		l.entries.AddWithExpiration(key, entry, entry.resetAt)
		return makeDecision(entry.count, l.rate.Count, entry.resetAt, now)
	}
	entry.count++
	return makeDecision(entry.count, l.rate.Count, entry.resetAt, now)
}

// Allow checks if the request should be allowed based on the rate limit. It never returns an error.
func (l *FixedWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	d := l.Decide(key)
	return d.Allowed, d.RetryAfter, nil
}

// AllowWithQuota is like Allow but returns the full decision. It never returns an error.
func (l *FixedWindowLimiter) AllowWithQuota(_ context.Context, key string) (Decision, error) {
	return l.Decide(key), nil
}

// Sweep removes all entries whose window has ended and returns how many were removed.
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.RemoveExpired()
}

// Len returns the number of tracked keys.
func (l *FixedWindowLimiter) Len() int {
	return l.entries.Len()
}

// RunPeriodicSweep calls Sweep every interval until ctx is done.
func (l *FixedWindowLimiter) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
