/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import "github.com/prometheus/client_golang/prometheus"

var metricsResponseErrors *prometheus.CounterVec

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

// MustInitAndRegisterMetrics initializes restapi global metrics and registers them in reg.
// Panic will be raised in case of error.
func MustInitAndRegisterMetrics(reg prometheus.Registerer, namespace string) {
	metricsResponseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "The total number of REST API errors that were responded.",
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode})
	reg.MustRegister(metricsResponseErrors)
}

// UnregisterMetrics unregisters restapi global metrics from reg.
func UnregisterMetrics(reg prometheus.Registerer) {
	if metricsResponseErrors != nil {
		reg.Unregister(metricsResponseErrors)
		metricsResponseErrors = nil
	}
}

func incResponseErrors(err *Error) {
	if metricsResponseErrors == nil {
		return
	}
	metricsResponseErrors.With(prometheus.Labels{
		metricsLabelResponseErrorDomain: err.Domain,
		metricsLabelResponseErrorCode:   err.Code,
	}).Inc()
}
