// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BrokerRequestsTotal tracks outbound broker calls by venue and outcome (HTTP status or "error").
	BrokerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_api_requests_total",
			Help: "Total number of outbound broker API requests (by venue and outcome).",
		},
		[]string{"venue", "outcome"},
	)

	// BrokerRequestDuration measures outbound broker call latency.
	BrokerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_api_request_duration_seconds",
			Help:    "Duration of outbound broker API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"venue"},
	)

	// LoginsTotal counts broker session logins by result.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_logins_total",
			Help: "Broker session logins by result (ok, config_missing, auth_failure, network_failure, malformed_response).",
		},
		[]string{"result"},
	)

	// CacheLookups counts session and response cache lookups.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache (session, market_data) and result (hit, miss).",
		},
		[]string{"cache", "result"},
	)

	// FallbacksServed counts responses answered with synthetic data.
	FallbacksServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_data_fallbacks_total",
			Help: "Market-data responses served from mock data, by operation and reason.",
		},
		[]string{"operation", "reason"},
	)

	// HTTPRequestsTotal tracks inbound API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Inbound HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	// EventsPublished counts published session events by backend and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Session events published by backend and result (ok, error).",
		},
		[]string{"backend", "result"},
	)
)

// ObserveBrokerCall records one outbound attempt. Its signature matches httpclient.Observer.
func ObserveBrokerCall(venue, outcome string, elapsed time.Duration) {
	BrokerRequestsTotal.WithLabelValues(venue, outcome).Inc()
	BrokerRequestDuration.WithLabelValues(venue).Observe(elapsed.Seconds())
}

func IncLogin(result string) {
	LoginsTotal.WithLabelValues(result).Inc()
}

func IncCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

func IncFallback(operation, reason string) {
	FallbacksServed.WithLabelValues(operation, reason).Inc()
}

func IncHTTPRequest(route, status string) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

func IncEventPublished(backend, result string) {
	EventsPublished.WithLabelValues(backend, result).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
