// Package metrics holds the Prometheus instruments shared by the API. All
// collectors are registered with the default registry at import time and are
// served on /metrics when METRICS_ENABLED is true.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meditech_http_requests_total",
			Help: "HTTP requests processed, by method, route and status.",
		}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meditech_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meditech_logins_total",
			Help: "Login attempts, by outcome.",
		}, []string{"outcome"})

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meditech_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		})

	MountedRouteGroups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meditech_route_groups_mounted",
			Help: "Number of route groups mounted at startup.",
		})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LoginsTotal,
		RateLimitedTotal,
		MountedRouteGroups,
	)
}
