/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/restapi"
)

// SystemEndpoints are served by every router and are neither measured nor rate limited.
var SystemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a version of the API (1 for "/api/v1").
type APIVersion = int

// APIRoute configures routes of a single API version.
type APIRoute = func(router chi.Router)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// APIRoutes are mounted under "/api/v<version>".
	APIRoutes map[APIVersion]APIRoute
	// RootRoutes configures additional routes outside the API prefix (e.g. static files).
	RootRoutes      func(router chi.Router)
	RootMiddlewares []func(http.Handler) http.Handler
	ErrorDomain     string
	HealthCheck     HealthCheck
	// MetricsHandler serves "/metrics". promhttp.Handler() is used if nil.
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router with system endpoints, API routes and JSON 404/405 responses.
// No default middlewares are applied.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	if len(opts.APIRoutes) != 0 {
		router.Route("/api", func(router chi.Router) {
			for ver, r := range opts.APIRoutes {
				router.Route(fmt.Sprintf("/v%d", ver), r)
			}
		})
	}
	if opts.RootRoutes != nil {
		opts.RootRoutes(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerOrDefault(r, logger))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerOrDefault(r, logger))
	})
}

func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, opts *Opts, metricsCollector *middleware.HTTPRequestMetricsCollector,
) {
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})

	router.Use(middleware.RequestID())

	loggingOpts := middleware.LoggingOpts{
		RequestStart:           cfg.Log.RequestStart,
		RequestHeaders:         make(map[string]string, len(cfg.Log.RequestHeaders)),
		ExcludedEndpoints:      cfg.Log.ExcludedEndpoints,
		SecretQueryParams:      cfg.Log.SecretQueryParams,
		AddRequestInfoToLogger: cfg.Log.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(cfg.Log.SlowRequestThreshold),
	}
	for _, headerName := range cfg.Log.RequestHeaders {
		loggingOpts.RequestHeaders[headerName] = "req_header_" + strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
	}
	router.Use(middleware.LoggingWithOpts(logger, loggingOpts))

	router.Use(middleware.Recovery(opts.ErrorDomain))

	router.Use(middleware.HTTPRequestMetricsWithOpts(metricsCollector, middleware.GetChiRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: SystemEndpoints}))

	if cfg.Limits.MaxBodySizeBytes > 0 {
		router.Use(bodyLimitExcept(
			middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySizeBytes), opts.ErrorDomain), opts.BodyLimitExcludedEndpoints))
	}
}

// bodyLimitExcept skips the body limit for URL paths matching any of the glob patterns.
// Such routes are expected to apply their own limit.
func bodyLimitExcept(limitMw func(http.Handler) http.Handler, patterns []string) func(http.Handler) http.Handler {
	matchers := make([]func(string) bool, 0, len(patterns))
	for _, pattern := range patterns {
		matchers = append(matchers, glob.Compile(pattern))
	}
	return func(next http.Handler) http.Handler {
		limited := limitMw(next)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			for _, match := range matchers {
				if match(r.URL.Path) {
					next.ServeHTTP(rw, r)
					return
				}
			}
			limited.ServeHTTP(rw, r)
		})
	}
}

func loggerOrDefault(r *http.Request, logger log.FieldLogger) log.FieldLogger {
	if l := middleware.GetLoggerFromContext(r.Context()); l != nil {
		return l
	}
	return logger
}
