/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stretchr/testify/suite"
)

const testRedisAddrEnv = "BLOGAPI_TEST_REDIS_ADDR"

// RedisFixedWindowLimiterTestSuite contains integration tests for RedisFixedWindowLimiter.
// They run only if a Redis address is provided via the BLOGAPI_TEST_REDIS_ADDR environment variable.
type RedisFixedWindowLimiterTestSuite struct {
	suite.Suite
	client *redis.Client
	prefix string
}

func TestRedisFixedWindowLimiter(t *testing.T) {
	suite.Run(t, new(RedisFixedWindowLimiterTestSuite))
}

func (ts *RedisFixedWindowLimiterTestSuite) SetupSuite() {
	addr := os.Getenv(testRedisAddrEnv)
	if addr == "" {
		ts.T().Skipf("%s is not set", testRedisAddrEnv)
	}
	ts.client = redis.NewClient(&redis.Options{Addr: addr})
	ts.Require().NoError(ts.client.Ping(context.Background()).Err())
}

func (ts *RedisFixedWindowLimiterTestSuite) TearDownSuite() {
	if ts.client != nil {
		ts.NoError(ts.client.Close())
	}
}

func (ts *RedisFixedWindowLimiterTestSuite) SetupTest() {
	ts.prefix = "blogapi-test:" + xid.New().String() + ":"
}

func (ts *RedisFixedWindowLimiterTestSuite) TestInvalidRate() {
	_, err := NewRedisFixedWindowLimiter(ts.client, Rate{Count: 1, Duration: time.Microsecond}, RedisFixedWindowLimiterOpts{})
	ts.Error(err)
}

func (ts *RedisFixedWindowLimiterTestSuite) TestWindowLifecycle() {
	limiter, err := NewRedisFixedWindowLimiter(ts.client, Rate{Count: 3, Duration: 500 * time.Millisecond},
		RedisFixedWindowLimiterOpts{KeyPrefix: ts.prefix})
	ts.Require().NoError(err)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.AllowWithQuota(ctx, "10.0.0.1")
		ts.Require().NoError(err)
		ts.True(d.Allowed)
		ts.Equal(i, d.Count)
		ts.Equal(3-i, d.Remaining)
	}

	allow, retryAfter, err := limiter.Allow(ctx, "10.0.0.1")
	ts.Require().NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, 500*time.Millisecond)

	allow, _, err = limiter.Allow(ctx, "10.0.0.2")
	ts.Require().NoError(err)
	ts.True(allow)

	ts.Eventually(func() bool {
		d, err := limiter.AllowWithQuota(ctx, "10.0.0.1")
		return err == nil && d.Allowed && d.Count == 1
	}, 2*time.Second, 50*time.Millisecond)
}

func (ts *RedisFixedWindowLimiterTestSuite) TestKeyPrefix() {
	limiter, err := NewRedisFixedWindowLimiter(ts.client, Rate{Count: 3, Duration: time.Minute},
		RedisFixedWindowLimiterOpts{KeyPrefix: ts.prefix})
	ts.Require().NoError(err)

	_, _, err = limiter.Allow(context.Background(), "k")
	ts.Require().NoError(err)

	val, err := ts.client.Get(context.Background(), ts.prefix+"k").Int()
	ts.Require().NoError(err)
	ts.Equal(1, val)
	ts.NoError(ts.client.Del(context.Background(), ts.prefix+"k").Err())
}
