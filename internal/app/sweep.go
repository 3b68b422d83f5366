/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"context"
	"time"

	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/service"
)

// sweeper is implemented by in-memory limiters that can drop state of keys whose window has passed.
type sweeper interface {
	Sweep() int
}

func newSweepUnit(s sweeper, interval time.Duration, logger log.FieldLogger) *service.WorkerUnit {
	logger = logger.With(log.String("worker", "rate_limit_sweeper"))
	sweep := service.WorkerFunc(func(_ context.Context) error {
		if removed := s.Sweep(); removed > 0 {
			logger.Debug("expired rate limit entries removed", log.Int("removed", removed))
		}
		return nil
	})
	return service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(sweep, interval, logger,
		service.PeriodicWorkerOpts{InitialDelay: interval}))
}
