/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LeakyBucketLimiterTestSuite contains tests for LeakyBucketLimiter
type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestInvalidArgs() {
	_, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: 0}, 1, 100)
	ts.Error(err)

	_, err = NewLeakyBucketLimiter(Rate{Count: 2, Duration: time.Second}, -1, 100)
	ts.EqualError(err, "max burst should be >= 0, got -1")
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowSequential() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: time.Second}, 1, 100)
	ts.Require().NoError(err)

	ctx := context.Background()

	// Burst of maxBurst+1 requests is admitted at once.
	for i := 0; i < 2; i++ {
		allow, _, err := limiter.Allow(ctx, "blogger")
		ts.NoError(err)
		ts.True(allow)
	}

	allow, retryAfter, err := limiter.Allow(ctx, "blogger")
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, 500*time.Millisecond)

	allow, _, err = limiter.Allow(ctx, "reader")
	ts.NoError(err)
	ts.True(allow)
}
