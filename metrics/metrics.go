// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystone_http_requests_total",
			Help: "Total number of HTTP requests by method, route template and status class",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keystone_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route template",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keystone_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	LogEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keystone_log_events_dropped_total",
			Help: "Log events dropped because the remote sink queue was full",
		},
	)

	LogBatchesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keystone_log_batches_failed_total",
			Help: "Log batches the remote sink failed to deliver",
		},
	)

	DomainRouters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keystone_domain_routers",
			Help: "Number of domain routers mounted at startup",
		},
	)

	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keystone_build_info",
			Help: "Constant 1, labelled with the running version and environment",
		},
		[]string{"version", "environment"},
	)
)

// StatusGroup collapses a status code to its class ("2xx", "4xx", ...) to
// keep label cardinality bounded.
func StatusGroup(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// SetBuildInfo publishes the running version. Earlier label sets are
// cleared so only one series is live.
func SetBuildInfo(version, environment string) {
	BuildInfo.Reset()
	BuildInfo.WithLabelValues(version, environment).Set(1)
}
