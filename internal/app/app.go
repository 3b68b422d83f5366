/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package app assembles the blog API service: configuration, HTTP server, rate limiting and background workers.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-blogapi/httpserver"
	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/internal/api"
	"github.com/acronis/go-blogapi/internal/auth"
	"github.com/acronis/go-blogapi/internal/buildinfo"
	"github.com/acronis/go-blogapi/internal/post"
	"github.com/acronis/go-blogapi/internal/ratelimit"
	"github.com/acronis/go-blogapi/internal/upload"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/lrucache"
	"github.com/acronis/go-blogapi/profserver"
	"github.com/acronis/go-blogapi/restapi"
	"github.com/acronis/go-blogapi/retry"
	"github.com/acronis/go-blogapi/service"
)

// ErrorDomain is used in all error responses of the service.
const ErrorDomain = "BlogAPI"

// MetricsNamespace is prepended to names of all service metrics.
const MetricsNamespace = "blogapi"

// UploadsURLPrefix is the path prefix under which uploaded files are served.
const UploadsURLPrefix = "/uploads"

const rateLimitZone = "api"

const (
	redisPingTimeout         = 2 * time.Second
	redisPingInitialInterval = 200 * time.Millisecond
	redisPingMaxAttempts     = 5
)

// Opts represents options for App.
type Opts struct {
	// Repository stores posts. A new in-memory repository is used if nil.
	Repository post.Repository

	// Listener is passed to the HTTP server (mostly for tests).
	Listener net.Listener

	// Clock is used by the in-memory limiters for windows and key expiration. time.Now is used if nil.
	Clock func() time.Time
}

// App is the blog API service. It implements service.Unit and service.MetricsRegisterer.
type App struct {
	Config     *Config
	Logger     log.FieldLogger
	Server     *httpserver.HTTPServer
	Repository post.Repository

	// Registry holds all service metrics exposed at /metrics.
	Registry *prometheus.Registry

	unit             *service.CompositeUnit
	redisClient      *redis.Client
	rateLimitMetrics *middleware.RateLimitMetricsCollector
	keysMetrics      *lrucache.PrometheusMetrics
	buildInfo        prometheus.Collector
}

var _ service.Unit = (*App)(nil)
var _ service.MetricsRegisterer = (*App)(nil)

// New creates a new App. When the Redis-backed limiter is configured, Redis is pinged (with retries)
// before New returns.
func New(ctx context.Context, cfg *Config, logger log.FieldLogger, opts Opts) (*App, error) {
	a := &App{
		Config:     cfg,
		Logger:     logger,
		Repository: opts.Repository,
		Registry:   prometheus.NewRegistry(),
		rateLimitMetrics: middleware.NewRateLimitMetricsCollector(middleware.RateLimitMetricsCollectorOpts{
			Namespace: MetricsNamespace,
		}),
		keysMetrics: lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
			Namespace:   MetricsNamespace,
			ConstLabels: prometheus.Labels{"cache": "rate_limit_keys"},
		}),
		buildInfo: buildinfo.NewPrometheusCollector(MetricsNamespace),
	}
	if a.Repository == nil {
		a.Repository = post.NewMemoryRepository()
	}

	uploadStore, err := upload.NewStore(cfg.Uploads)
	if err != nil {
		return nil, err
	}

	var units []service.Unit
	var apiMiddlewares []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		rateLimitMw, sweepUnit, mwErr := a.makeRateLimitMiddleware(ctx, opts.Clock)
		if mwErr != nil {
			a.closeRedis()
			return nil, mwErr
		}
		apiMiddlewares = append(apiMiddlewares, rateLimitMw)
		if sweepUnit != nil {
			units = append(units, sweepUnit)
		}
	} else {
		logger.Warn("rate limiting is disabled")
	}

	a.Server = httpserver.New(cfg.Server, logger, httpserver.Opts{
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			api.Version: api.NewRoutes(api.RoutesOpts{
				ErrorDomain:   ErrorDomain,
				Repository:    a.Repository,
				Authenticator: auth.NewAuthenticator(cfg.Auth.Tokens()),
				Uploads:       uploadStore,
				Middlewares:   apiMiddlewares,
			}),
		},
		RootRoutes:     func(r chi.Router) { mountUploads(r, uploadStore.Dir()) },
		ErrorDomain:    ErrorDomain,
		HealthCheck:    a.healthCheck,
		MetricsHandler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace: MetricsNamespace,
		},
		BodyLimitExcludedEndpoints: []string{fmt.Sprintf("/api/v%d%s", api.Version, api.UploadPath)},
		Listener:                   opts.Listener,
	})
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}
	a.unit = service.NewCompositeUnit(append([]service.Unit{a.Server}, units...)...)

	return a, nil
}

// Start starts the HTTP server, the profiling server (if enabled) and background workers.
func (a *App) Start(fatalError chan<- error) {
	a.unit.Start(fatalError)
}

// Stop stops the HTTP server and background workers and closes the Redis connection.
func (a *App) Stop(gracefully bool) error {
	err := a.unit.Stop(gracefully)
	a.closeRedis()
	return err
}

// MustRegisterMetrics registers metrics of the server, rate limiting and REST API errors.
func (a *App) MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(a.buildInfo)
	restapi.MustInitAndRegisterMetrics(reg, MetricsNamespace)
	a.rateLimitMetrics.MustRegister(reg)
	a.keysMetrics.MustRegister(reg)
	a.unit.MustRegisterMetrics(reg)
}

// UnregisterMetrics unregisters all metrics registered by MustRegisterMetrics.
func (a *App) UnregisterMetrics(reg prometheus.Registerer) {
	a.unit.UnregisterMetrics(reg)
	a.keysMetrics.Unregister(reg)
	a.rateLimitMetrics.Unregister(reg)
	restapi.UnregisterMetrics(reg)
	reg.Unregister(a.buildInfo)
}

func (a *App) makeRateLimitMiddleware(
	ctx context.Context, clock func() time.Time,
) (func(http.Handler) http.Handler, service.Unit, error) {
	cfg := a.Config.RateLimit

	limiter, err := a.makeRateLimiter(ctx, clock)
	if err != nil {
		return nil, nil, err
	}
	getKey, err := middleware.NewRateLimitGetKeyFunc(cfg.Key.Source, cfg.Key.Header, cfg.Key.Excluded)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit key: %w", err)
	}
	mw, err := middleware.RateLimitWithOpts(cfg.Rate, ErrorDomain, middleware.RateLimitOpts{
		Limiter:            limiter,
		GetKey:             getKey,
		ResponseStatusCode: cfg.ResponseStatusCode,
		DryRun:             cfg.DryRun,
		FailOpen:           cfg.FailOpen,
		MetricsCollector:   a.rateLimitMetrics,
		Zone:               rateLimitZone,
	})
	if err != nil {
		return nil, nil, err
	}

	a.Logger.Info("rate limiting is enabled",
		log.String("alg", cfg.Alg),
		log.String("rate", cfg.Rate.String()),
		log.String("key_source", string(cfg.Key.Source)),
		log.Bool("dry_run", cfg.DryRun),
	)

	var sweepUnit service.Unit
	if s, ok := limiter.(sweeper); ok && cfg.SweepInterval > 0 {
		sweepUnit = newSweepUnit(s, time.Duration(cfg.SweepInterval), a.Logger)
	}
	return mw, sweepUnit, nil
}

func (a *App) makeRateLimiter(ctx context.Context, clock func() time.Time) (ratelimit.Limiter, error) {
	cfg := a.Config.RateLimit
	switch cfg.Alg {
	case RateLimitAlgFixedWindow:
		return ratelimit.NewFixedWindowLimiterWithOpts(cfg.Rate, ratelimit.FixedWindowLimiterOpts{
			MaxKeys:          cfg.MaxKeys,
			Clock:            clock,
			MetricsCollector: a.keysMetrics,
		})
	case RateLimitAlgSlidingWindow:
		return ratelimit.NewSlidingWindowLimiterWithOpts(cfg.Rate, ratelimit.SlidingWindowLimiterOpts{
			MaxKeys:          cfg.MaxKeys,
			Clock:            clock,
			MetricsCollector: a.keysMetrics,
		})
	case RateLimitAlgLeakyBucket:
		return middleware.NewRateLimiter(middleware.RateLimitAlgLeakyBucket, cfg.Rate, cfg.MaxBurst, cfg.MaxKeys)
	case RateLimitAlgTokenBucket:
		return ratelimit.NewTokenBucketLimiter(cfg.Rate, ratelimit.TokenBucketLimiterOpts{
			Burst:            cfg.MaxBurst,
			MaxKeys:          cfg.MaxKeys,
			Clock:            clock,
			MetricsCollector: a.keysMetrics,
		})
	case RateLimitAlgRedisFixedWindow:
		client, err := connectRedis(ctx, cfg.Redis, a.Logger)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		return ratelimit.NewRedisFixedWindowLimiter(client, cfg.Rate, ratelimit.RedisFixedWindowLimiterOpts{
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown rate limit alg %q", cfg.Alg)
	}
}

func (a *App) healthCheck(ctx context.Context) (httpserver.HealthCheckResult, error) {
	res := httpserver.HealthCheckResult{}
	if a.redisClient == nil {
		return res, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := a.redisClient.Ping(pingCtx).Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Logger.Warn("Redis health check failed", log.Error(err))
		res["redis"] = httpserver.HealthCheckStatusFail
		return res, nil
	}
	res["redis"] = httpserver.HealthCheckStatusOK
	return res, nil
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.Logger.Warn("failed to close Redis client", log.Error(err))
	}
}

func connectRedis(ctx context.Context, cfg RateLimitRedisConfig, logger log.FieldLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	policy := retry.NewExponentialBackoffPolicy(redisPingInitialInterval, redisPingMaxAttempts)
	err := retry.DoWithRetry(ctx, policy, nil, retry.NotifyWithLogger(logger, "failed to ping Redis"),
		func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to Redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("connected to Redis", log.String("address", cfg.Addr), log.Int("db", cfg.DB))
	return client, nil
}

// mountUploads serves stored files read-only. Directory listings are not exposed.
func mountUploads(r chi.Router, dir string) {
	fileServer := http.StripPrefix(UploadsURLPrefix+"/", http.FileServer(http.Dir(dir)))
	r.Get(UploadsURLPrefix+"/*", func(rw http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			restapi.RespondError(rw, http.StatusNotFound,
				restapi.NewError(ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), nil)
			return
		}
		fileServer.ServeHTTP(rw, req)
	})
}
