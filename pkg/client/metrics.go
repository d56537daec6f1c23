package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts calls to the chat API by endpoint and status
	// ("2xx", "4xx", "5xx", "network").
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_upstream_requests_total",
			Help: "Total number of requests sent to the chat API",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamDuration tracks chat API latency.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadchat_upstream_request_duration_seconds",
			Help:    "Chat API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Coalesced counts callers that shared another caller's upstream request.
	Coalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadchat_upstream_coalesced_total",
			Help: "Total number of cache misses served by an in-flight request",
		},
	)
)

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
