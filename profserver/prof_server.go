/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides a separate HTTP server that exposes pprof profiles under /debug/pprof/.
package profserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer is an HTTP server for profiling. It implements service.Unit interface.
// It's not rate limited and has no API routes, so it should listen on a loopback or internal address.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	serveDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new profiling HTTP server.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("server", "pprof"))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		Logger:    logger,
		serveDone: make(chan struct{}),
	}
}

// Start starts the server in a blocking way. A listen error is sent to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.serveDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("profiling HTTP server closed")
			return
		}
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop closes the server immediately. Profiles in progress are aborted even if gracefully is true.
func (s *ProfServer) Stop(_ bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.serveDone
	return nil
}
