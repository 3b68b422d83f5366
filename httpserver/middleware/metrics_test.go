/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-blogapi/testutil"
)

func TestHTTPRequestMetricsHandler_ServeHTTP(t *testing.T) {
	makeLabels := func(method, routePattern, uaType string, statusCode int) prometheus.Labels {
		return prometheus.Labels{
			httpRequestMetricsLabelMethod:        method,
			httpRequestMetricsLabelRoutePattern:  routePattern,
			httpRequestMetricsLabelUserAgentType: uaType,
			httpRequestMetricsLabelStatusCode:    strconv.Itoa(statusCode),
		}
	}

	t.Run("route pattern is resolved after routing", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		router := chi.NewRouter()
		router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern))
		router.Get("/api/v1/posts/{id}", func(rw http.ResponseWriter, r *http.Request) {
			require.Equal(t, 1.0, promtestutil.ToFloat64(collector.InFlight))
			rw.WriteHeader(http.StatusNotFound)
		})
		router.Delete("/api/v1/posts/{id}", func(rw http.ResponseWriter, r *http.Request) {})

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/posts/"+strconv.Itoa(i), nil)
			req.Header.Set("User-Agent", "Mozilla/5.0")
			router.ServeHTTP(httptest.NewRecorder(), req)
		}
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/posts/1", nil))

		hist := collector.Durations.With(
			makeLabels(http.MethodGet, "/api/v1/posts/{id}", userAgentTypeBrowser, http.StatusNotFound)).(prometheus.Histogram)
		testutil.RequireSamplesCountInHistogram(t, hist, 3)

		hist = collector.Durations.With(
			makeLabels(http.MethodDelete, "/api/v1/posts/{id}", userAgentTypeHTTPClient, http.StatusOK)).(prometheus.Histogram)
		testutil.RequireSamplesCountInHistogram(t, hist, 1)

		require.Equal(t, 0.0, promtestutil.ToFloat64(collector.InFlight))
	})

	t.Run("excluded endpoints and custom user agent type", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		getRoutePattern := func(r *http.Request) string { return r.URL.Path }
		h := HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{
			GetUserAgentType:  func(r *http.Request) string { return "blog-client" },
			ExcludedEndpoints: []string{"/healthz", "/uploads/*"},
		})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))

		require.Equal(t, 1, promtestutil.CollectAndCount(collector.Durations))
		hist := collector.Durations.With(
			makeLabels(http.MethodGet, "/api/v1/posts", "blog-client", http.StatusOK)).(prometheus.Histogram)
		testutil.RequireSamplesCountInHistogram(t, hist, 1)
	})

	t.Run("panic is tracked as 500", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		getRoutePattern := func(r *http.Request) string { return r.URL.Path }
		h := HTTPRequestMetrics(collector, getRoutePattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		require.Panics(t, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil))
		})
		hist := collector.Durations.With(
			makeLabels(http.MethodPost, "/api/v1/posts", userAgentTypeHTTPClient, http.StatusInternalServerError)).(prometheus.Histogram)
		testutil.RequireSamplesCountInHistogram(t, hist, 1)
	})

	t.Run("register and unregister", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		collector := NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{Namespace: "blogapi"})
		require.NotPanics(t, func() { collector.MustRegister(reg) })
		collector.Unregister(reg)
		require.NotPanics(t, func() { collector.MustRegister(reg) })
	})
}
