/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	rateLimitMetricsLabelZone   = "zone"
	rateLimitMetricsLabelDryRun = "dry_run"
)

// RateLimitMetricsCollectorOpts represents an options for RateLimitMetricsCollector.
type RateLimitMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// RateLimitMetricsCollector counts requests rejected by the RateLimit middleware.
type RateLimitMetricsCollector struct {
	Rejects *prometheus.CounterVec
}

// NewRateLimitMetricsCollector creates a new metrics collector.
func NewRateLimitMetricsCollector(opts RateLimitMetricsCollectorOpts) *RateLimitMetricsCollector {
	return &RateLimitMetricsCollector{
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_rejects_total",
			Help:        "Number of requests rejected by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		}, []string{rateLimitMetricsLabelZone, rateLimitMetricsLabelDryRun}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *RateLimitMetricsCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Rejects)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *RateLimitMetricsCollector) Unregister(reg prometheus.Registerer) {
	reg.Unregister(c.Rejects)
}

func (c *RateLimitMetricsCollector) incRejects(zone string, dryRun bool) {
	c.Rejects.With(prometheus.Labels{
		rateLimitMetricsLabelZone:   zone,
		rateLimitMetricsLabelDryRun: strconv.FormatBool(dryRun),
	}).Inc()
}
