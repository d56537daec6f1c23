package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lookups counts Get calls by outcome (hit, miss, expired).
	Lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_cache_lookups_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"outcome"},
	)

	// Errors counts failed backend operations.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_cache_errors_total",
			Help: "Total number of cache persistence errors",
		},
		[]string{"operation"}, // "load", "save", "remove", "size"
	)

	// Entries tracks entries currently held in memory.
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadchat_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)
