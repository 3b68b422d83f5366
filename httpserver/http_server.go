/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/service"
)

// HTTPRequestMetricsOpts represents options for the request metrics collected by HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// APIRoutes maps API versions to their route configuration functions ("/api/v1", ...).
	APIRoutes map[APIVersion]APIRoute
	// RootRoutes configures routes outside the API prefix.
	RootRoutes func(router chi.Router)
	// RootMiddlewares are applied after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler
	ErrorDomain     string
	HealthCheck     HealthCheck
	MetricsHandler  http.Handler

	HTTPRequestMetrics HTTPRequestMetricsOpts

	// BodyLimitExcludedEndpoints are URL path glob patterns for which the server-wide body limit is not applied.
	BodyLimitExcludedEndpoints []string

	// Listener is used instead of listening on the configured address (mostly in tests).
	Listener net.Listener
}

// HTTPServer is a wrapper around http.Server with chi.Router as a handler.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	TLS             TLSConfig
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener         net.Listener
	port             int32
	serveDone        atomic.Value
	metricsCollector *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with request ids, logging, panic recovery, request metrics,
// body size limit and the /healthz and /metrics endpoints.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam: opts is heavy, it's ok in this case.
	metricsCollector := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, &opts, metricsCollector)
	configureRouter(router, logger, RouterOpts{
		APIRoutes:       opts.APIRoutes,
		RootRoutes:      opts.RootRoutes,
		RootMiddlewares: opts.RootMiddlewares,
		ErrorDomain:     opts.ErrorDomain,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
	})

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		HTTPRouter:       router,
		TLS:              cfg.TLS,
		Logger:           logger,
		ShutdownTimeout:  time.Duration(cfg.Timeouts.Shutdown),
		listener:         opts.Listener,
		metricsCollector: metricsCollector,
	}
}

// Start starts the HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	port, err := parseListenerPort(s.listener)
	if err != nil {
		logger.Error("unexpected format of listener address", log.Error(err))
		fatalError <- err
		return
	}
	atomic.StoreInt32(&s.port, port)

	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("HTTP server closed")
			return
		}
		logger.Error("HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the HTTP server. A graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("HTTP server shut down")
	s.waitServeDone()
	return nil
}

func (s *HTTPServer) waitServeDone() {
	if done, ok := s.serveDone.Load().(chan struct{}); ok && done != nil {
		<-done
	}
}

// MustRegisterMetrics registers request metrics and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics(reg prometheus.Registerer) {
	s.metricsCollector.MustRegister(reg)
}

// UnregisterMetrics unregisters request metrics.
func (s *HTTPServer) UnregisterMetrics(reg prometheus.Registerer) {
	s.metricsCollector.Unregister(reg)
}

// GetPort returns the port the server listens on. It's 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}

// URL returns the base URL of the started server.
func (s *HTTPServer) URL() string {
	scheme := "http"
	if s.TLS.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://127.0.0.1:%d", scheme, s.GetPort())
}

func parseListenerPort(l net.Listener) (int32, error) {
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("no numeric port in %q: %w", l.Addr().String(), err)
	}
	return int32(port), nil
}
