/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the application as a set of units (HTTP server, background workers)
// and stops them gracefully on OS signals.
package service

import "github.com/prometheus/client_golang/prometheus"

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may return immediately or block for the unit's lifetime.
	// If Start succeeds, it must not write anything to the provided error channel,
	// and the channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics(reg prometheus.Registerer)
	UnregisterMetrics(reg prometheus.Registerer)
}
