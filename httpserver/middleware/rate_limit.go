/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-blogapi/internal/ratelimit"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware that limits the rate of HTTP requests.
const RateLimitErrCode = "tooManyRequests"

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// Response headers describing the quota of the current window.
const (
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

const rateLimitTimeSlot = "rate_limit_ms"

// RateLimitAlg represents a type for specifying rate-limiting algorithm.
type RateLimitAlg int

// Supported rate-limiting algorithms.
const (
	RateLimitAlgFixedWindow RateLimitAlg = iota
	RateLimitAlgSlidingWindow
	RateLimitAlgLeakyBucket
	RateLimitAlgTokenBucket
)

// Rate describes the frequency of requests.
type Rate = ratelimit.Rate

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain           string
	ResponseStatusCode  int
	GetRetryAfter       RateLimitGetRetryAfterFunc
	Key                 string
	EstimatedRetryAfter time.Duration
}

// RateLimitGetRetryAfterFunc is a function that is called to get a value for Retry-After response HTTP header
// when the rate limit is exceeded.
type RateLimitGetRetryAfterFunc func(r *http.Request, estimatedTime time.Duration) time.Duration

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when the limiter or the key extraction fails.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
// If bypass is true, the request is not limited.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// Alg is used to build the limiter when Limiter is nil.
	Alg RateLimitAlg

	// MaxBurst is used by the leaky bucket and token bucket algorithms.
	MaxBurst int

	// GetKey extracts the key. All requests share one quota if nil.
	GetKey RateLimitGetKeyFunc

	// MaxKeys bounds the number of keys tracked by an in-memory limiter.
	// DefaultRateLimitMaxKeys is used if zero and GetKey is set.
	MaxKeys int

	// Limiter is a ready limiter (e.g. Redis-backed or shared with a sweeper). Alg, MaxBurst and MaxKeys are ignored if set.
	Limiter ratelimit.Limiter

	// ResponseStatusCode is the status of rejected requests. 429 is used if zero.
	ResponseStatusCode int

	GetRetryAfter RateLimitGetRetryAfterFunc

	// DryRun logs rejects instead of applying them.
	DryRun bool

	// FailOpen serves the request if the limiter fails. By default, 500 is returned.
	FailOpen bool

	// MetricsCollector counts rejected requests. Metrics are disabled if nil.
	MetricsCollector *RateLimitMetricsCollector

	// Zone names the limited scope in metrics (e.g. "api").
	Zone string

	OnReject         RateLimitOnRejectFunc
	OnRejectInDryRun RateLimitOnRejectFunc
	OnError          RateLimitOnErrorFunc
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        ratelimit.Limiter
	getKey         RateLimitGetKeyFunc
	errDomain      string
	respStatusCode int
	getRetryAfter  RateLimitGetRetryAfterFunc
	dryRun         bool
	zone           string
	metrics        *RateLimitMetricsCollector

	onReject RateLimitOnRejectFunc
	onError  RateLimitOnErrorFunc
}

// RateLimit is a middleware that limits the rate of HTTP requests with the fixed window algorithm.
func RateLimit(maxRate Rate, errDomain string) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(maxRate, errDomain, RateLimitOpts{GetRetryAfter: GetRetryAfterEstimatedTime})
}

// MustRateLimit is a version of RateLimit that panics if an error occurs.
func MustRateLimit(maxRate Rate, errDomain string) func(next http.Handler) http.Handler {
	mw, err := RateLimit(maxRate, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// NewRateLimiter builds an in-memory limiter for the given algorithm with a state per key.
// Zero maxKeys means the key store is unbounded. Token bucket keys expire after a full refill
// and sliding window keys after two idle windows.
func NewRateLimiter(alg RateLimitAlg, maxRate Rate, maxBurst, maxKeys int) (ratelimit.Limiter, error) {
	switch alg {
	case RateLimitAlgFixedWindow:
		return ratelimit.NewFixedWindowLimiterWithOpts(maxRate, ratelimit.FixedWindowLimiterOpts{MaxKeys: maxKeys})
	case RateLimitAlgSlidingWindow:
		return ratelimit.NewSlidingWindowLimiter(maxRate, maxKeys)
	case RateLimitAlgLeakyBucket:
		return ratelimit.NewLeakyBucketLimiter(maxRate, maxBurst, maxKeys)
	case RateLimitAlgTokenBucket:
		return ratelimit.NewTokenBucketLimiter(maxRate, ratelimit.TokenBucketLimiterOpts{Burst: maxBurst, MaxKeys: maxKeys})
	default:
		return nil, fmt.Errorf("unknown rate limit alg %d", alg)
	}
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	limiter := opts.Limiter
	if limiter == nil {
		maxKeys := 0
		if opts.GetKey != nil {
			maxKeys = opts.MaxKeys
			if maxKeys == 0 {
				maxKeys = DefaultRateLimitMaxKeys
			}
		}
		var err error
		if limiter, err = NewRateLimiter(opts.Alg, maxRate, opts.MaxBurst, maxKeys); err != nil {
			return nil, err
		}
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	getRetryAfter := opts.GetRetryAfter
	if getRetryAfter == nil {
		getRetryAfter = GetRetryAfterEstimatedTime
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			errDomain:      errDomain,
			getKey:         opts.GetKey,
			getRetryAfter:  getRetryAfter,
			respStatusCode: respStatusCode,
			dryRun:         opts.DryRun,
			zone:           opts.Zone,
			metrics:        opts.MetricsCollector,
			onReject:       makeRateLimitOnRejectFunc(opts),
			onError:        makeRateLimitOnErrorFunc(opts),
		}
	}, nil
}

// MustRateLimitWithOpts is a version of RateLimitWithOpts that panics if an error occurs.
func MustRateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimitWithOpts(maxRate, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	params := RateLimitParams{
		ErrDomain:          h.errDomain,
		ResponseStatusCode: h.respStatusCode,
		GetRetryAfter:      h.getRetryAfter,
	}
	logger := GetLoggerFromContext(r.Context())

	if h.getKey != nil {
		key, bypass, err := h.getKey(r)
		if err != nil {
			h.onError(rw, r, params, fmt.Errorf("get rate limit key: %w", err), h.next, logger)
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
		params.Key = key
	}

	startTime := time.Now()
	allow, retryAfter, err := h.allow(rw, r, params.Key)
	if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs(rateLimitTimeSlot, time.Since(startTime))
	}
	if err != nil {
		h.onError(rw, r, params, err, h.next, logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if h.metrics != nil {
		h.metrics.incRejects(h.zone, h.dryRun)
	}
	params.EstimatedRetryAfter = retryAfter
	h.onReject(rw, r, params, h.next, logger)
}

// allow asks the limiter and, if it reports the quota, exposes it in the response headers.
func (h *rateLimitHandler) allow(rw http.ResponseWriter, r *http.Request, key string) (bool, time.Duration, error) {
	quotaLimiter, ok := h.limiter.(ratelimit.QuotaLimiter)
	if !ok {
		return h.limiter.Allow(r.Context(), key)
	}
	d, err := quotaLimiter.AllowWithQuota(r.Context(), key)
	if err != nil {
		return false, 0, err
	}
	rw.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	rw.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	rw.Header().Set(HeaderRateLimitReset, strconv.FormatInt(int64(math.Ceil(float64(d.ResetAt.UnixMilli())/1000)), 10))
	return d.Allowed, d.RetryAfter, nil
}

// GetRetryAfterEstimatedTime returns estimated time after that the client may retry the request.
func GetRetryAfterEstimatedTime(_ *http.Request, estimatedTime time.Duration) time.Duration {
	return estimatedTime
}

// DefaultRateLimitOnReject responds with the "tooManyRequests" error and the Retry-After header
// (time until the window resets, rounded up to whole seconds).
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.GetRetryAfter != nil {
		retryAfter := params.GetRetryAfter(r, params.EstimatedRetryAfter)
		rw.Header().Set(HeaderRetryAfter, strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	apiErr := restapi.NewError(params.ErrDomain, RateLimitErrCode, restapi.ErrMessageTooManyRequests)
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultRateLimitOnError logs the error and responds with 500.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limiting failed", log.Error(err), log.String(RateLimitLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// RateLimitOnErrorFailOpen logs the error and serves the request as if it was allowed.
func RateLimitOnErrorFailOpen(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("rate limiting failed, serving will be continued because of fail-open mode",
			log.Error(err), log.String(RateLimitLogFieldKey, params.Key))
	}
	next.ServeHTTP(rw, r)
}

// DefaultRateLimitOnRejectInDryRun logs the reject and serves the request.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

func makeRateLimitOnRejectFunc(opts RateLimitOpts) RateLimitOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultRateLimitOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultRateLimitOnReject
}

func makeRateLimitOnErrorFunc(opts RateLimitOpts) RateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	if opts.FailOpen {
		return RateLimitOnErrorFailOpen
	}
	return DefaultRateLimitOnError
}
