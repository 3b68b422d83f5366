/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is prepended to every key stored by RedisFixedWindowLimiter.
const DefaultRedisKeyPrefix = "blogapi:ratelimit:"

// fixedWindowScript increments the counter and starts the window expiration when the counter is created.
// A counter without TTL (e.g. left after a failed PEXPIRE) gets one, so it cannot block the key forever.
// Returns {count, pttl in milliseconds}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisFixedWindowLimiter is a fixed window limiter whose counters live in Redis,
// so several service instances share one quota per key.
type RedisFixedWindowLimiter struct {
	client    redis.Scripter
	rate      Rate
	keyPrefix string
	now       func() time.Time
}

var _ QuotaLimiter = (*RedisFixedWindowLimiter)(nil)

// RedisFixedWindowLimiterOpts represents options for RedisFixedWindowLimiter.
type RedisFixedWindowLimiterOpts struct {
	// KeyPrefix is prepended to every key. DefaultRedisKeyPrefix is used if empty.
	KeyPrefix string

	// Clock returns the current time used to compute ResetAt. time.Now is used if nil.
	Clock func() time.Time
}

// NewRedisFixedWindowLimiter creates a new Redis-backed fixed window rate limiter.
func NewRedisFixedWindowLimiter(
	client redis.Scripter, maxRate Rate, opts RedisFixedWindowLimiterOpts,
) (*RedisFixedWindowLimiter, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	if maxRate.Duration < time.Millisecond {
		return nil, fmt.Errorf("rate duration should be >= 1ms, got %s", maxRate.Duration)
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultRedisKeyPrefix
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &RedisFixedWindowLimiter{client: client, rate: maxRate, keyPrefix: opts.KeyPrefix, now: opts.Clock}, nil
}

// AllowWithQuota registers a request for the key in Redis and returns the decision.
func (l *RedisFixedWindowLimiter) AllowWithQuota(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.keyPrefix + key}, l.rate.Duration.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run fixed window script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected fixed window script result %v", res)
	}
	now := l.now()
	resetAt := now.Add(time.Duration(res[1]) * time.Millisecond)
	return makeDecision(int(res[0]), l.rate.Count, resetAt, now), nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	d, err := l.AllowWithQuota(ctx, key)
	if err != nil {
		return false, 0, err
	}
	return d.Allowed, d.RetryAfter, nil
}
