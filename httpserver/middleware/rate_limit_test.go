/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-blogapi/internal/ratelimit"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/log/logtest"
	"github.com/acronis/go-blogapi/testutil"
)

const testErrDomain = "BlogAPI"

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingLimiter struct {
	err error
}

func (l *failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, l.err
}

func makeCountingNext() (http.Handler, *atomic.Int32) {
	served := atomic.NewInt32(0)
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		served.Inc()
		rw.WriteHeader(http.StatusOK)
	}), served
}

func sendFromAddr(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.RemoteAddr = remoteAddr
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitHandler_FixedWindow(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter, err := ratelimit.NewFixedWindowLimiterWithOpts(Rate{Count: 5, Duration: time.Minute},
		ratelimit.FixedWindowLimiterOpts{Clock: clock.Now})
	require.NoError(t, err)

	metrics := NewRateLimitMetricsCollector(RateLimitMetricsCollectorOpts{})
	next, served := makeCountingNext()
	handler := MustRateLimitWithOpts(Rate{Count: 5, Duration: time.Minute}, testErrDomain, RateLimitOpts{
		Limiter:          limiter,
		GetKey:           RateLimitKeyByRemoteAddr,
		MetricsCollector: metrics,
		Zone:             "api",
	})(next)

	for i := 1; i <= 5; i++ {
		resp := sendFromAddr(handler, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "5", resp.Header().Get(HeaderRateLimitLimit))
		require.Equal(t, strconv.Itoa(5-i), resp.Header().Get(HeaderRateLimitRemaining))
		require.Equal(t, strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10), resp.Header().Get(HeaderRateLimitReset))
	}

	clock.Advance(time.Second)
	resp := sendFromAddr(handler, "10.0.0.1:5678")
	testutil.RequireRetryAfterInRecorder(t, resp, 59)
	testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, testErrDomain, RateLimitErrCode)
	require.Equal(t, "0", resp.Header().Get(HeaderRateLimitRemaining))
	require.Equal(t, 5, int(served.Load()))

	// Another client has its own quota.
	require.Equal(t, http.StatusOK, sendFromAddr(handler, "10.0.0.2:1234").Code)

	clock.Advance(60 * time.Second)
	resp = sendFromAddr(handler, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "4", resp.Header().Get(HeaderRateLimitRemaining))
	require.Equal(t, 7, int(served.Load()))

	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Rejects.With(prometheus.Labels{"zone": "api", "dry_run": "false"})))
}

func TestRateLimitHandler_RejectBody(t *testing.T) {
	next, _ := makeCountingNext()
	handler := MustRateLimit(Rate{Count: 1, Duration: time.Minute}, testErrDomain)(next)

	require.Equal(t, http.StatusOK, sendFromAddr(handler, "10.0.0.1:1").Code)

	resp := sendFromAddr(handler, "10.0.0.1:1")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.JSONEq(t,
		`{"error":{"domain":"BlogAPI","code":"tooManyRequests","message":"Too many requests."}}`, resp.Body.String())

	// Without a key function every client shares the quota.
	require.Equal(t, http.StatusTooManyRequests, sendFromAddr(handler, "10.0.0.2:1").Code)
}

func TestRateLimitHandler_Concurrency(t *testing.T) {
	const limit = 20
	next, served := makeCountingNext()
	handler := MustRateLimitWithOpts(Rate{Count: limit, Duration: time.Hour}, testErrDomain, RateLimitOpts{
		GetKey: RateLimitKeyByRemoteAddr,
	})(next)

	var okCount, rejectedCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch sendFromAddr(handler, "10.0.0.1:1234").Code {
			case http.StatusOK:
				okCount.Inc()
			case http.StatusTooManyRequests:
				rejectedCount.Inc()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, limit, int(okCount.Load()))
	require.Equal(t, limit, int(rejectedCount.Load()))
	require.Equal(t, limit, int(served.Load()))
}

func TestRateLimitHandler_Algorithms(t *testing.T) {
	for _, alg := range []RateLimitAlg{RateLimitAlgSlidingWindow, RateLimitAlgLeakyBucket, RateLimitAlgTokenBucket} {
		t.Run(strconv.Itoa(int(alg)), func(t *testing.T) {
			next, served := makeCountingNext()
			handler := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
				Alg:    alg,
				GetKey: RateLimitKeyByRemoteAddr,
			})(next)

			require.Equal(t, http.StatusOK, sendFromAddr(handler, "10.0.0.1:1").Code)
			resp := sendFromAddr(handler, "10.0.0.1:1")
			require.Equal(t, http.StatusTooManyRequests, resp.Code)
			require.NotEmpty(t, resp.Header().Get(HeaderRetryAfter))
			require.Empty(t, resp.Header().Get(HeaderRateLimitLimit))
			require.Equal(t, http.StatusOK, sendFromAddr(handler, "10.0.0.2:1").Code)
			require.Equal(t, 2, int(served.Load()))
		})
	}

	_, err := RateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{Alg: RateLimitAlg(100)})
	require.EqualError(t, err, "unknown rate limit alg 100")

	_, err = RateLimit(Rate{Count: 0, Duration: time.Minute}, testErrDomain)
	require.Error(t, err)
}

func TestRateLimitHandler_DryRun(t *testing.T) {
	logger := logtest.NewRecorder()
	metrics := NewRateLimitMetricsCollector(RateLimitMetricsCollectorOpts{})
	next, served := makeCountingNext()
	handler := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
		GetKey:           RateLimitKeyByRemoteAddr,
		DryRun:           true,
		MetricsCollector: metrics,
	})(next)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)
	}
	require.Equal(t, 3, int(served.Load()))
	require.Equal(t, 2, logger.CountEntriesAtLevel(log.LevelWarn))
	require.Equal(t, 2.0, promtestutil.ToFloat64(metrics.Rejects.With(prometheus.Labels{"zone": "", "dry_run": "true"})))
}

func TestRateLimitHandler_LimiterError(t *testing.T) {
	limiterErr := errors.New("redis: connection refused")

	t.Run("internal error by default", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next, served := makeCountingNext()
		handler := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
			Limiter: &failingLimiter{err: limiterErr},
		})(next)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, testErrDomain, "internalError")
		require.Equal(t, 0, int(served.Load()))
		entry, found := logger.FindEntry("rate limiting failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})

	t.Run("fail open", func(t *testing.T) {
		next, served := makeCountingNext()
		handler := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
			Limiter:  &failingLimiter{err: limiterErr},
			FailOpen: true,
		})(next)

		require.Equal(t, http.StatusOK, sendFromAddr(handler, "10.0.0.1:1").Code)
		require.Equal(t, 1, int(served.Load()))
	})

	t.Run("key error", func(t *testing.T) {
		next, served := makeCountingNext()
		handler := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
			GetKey: func(r *http.Request) (string, bool, error) { return "", false, errors.New("no key") },
		})(next)

		resp := sendFromAddr(handler, "10.0.0.1:1")
		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, testErrDomain, "internalError")
		require.Equal(t, 0, int(served.Load()))
	})
}

func TestRateLimitHandler_TimeSlot(t *testing.T) {
	next, _ := makeCountingNext()
	handler := MustRateLimit(Rate{Count: 1, Duration: time.Minute}, testErrDomain)(next)

	lp := &LoggingParams{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req = req.WithContext(NewContextWithLoggingParams(req.Context(), lp))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	_, ok := lp.timeSlots[rateLimitTimeSlot]
	require.True(t, ok)
}
