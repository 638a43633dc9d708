package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts completed sync passes by outcome (completed|skipped_offline|skipped_busy).
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warebox_sync_passes_total",
			Help: "Total number of sync pass invocations",
		},
		[]string{"outcome"},
	)

	// DrainedItems counts queue items processed during drain by operation and result (success|failure).
	DrainedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warebox_drained_items_total",
			Help: "Total number of queue items processed during drain",
		},
		[]string{"operation", "result"},
	)

	// QueueDepth tracks the number of pending mutations awaiting sync.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warebox_queue_depth",
			Help: "Number of pending mutations in the sync queue",
		},
	)

	// RefreshFetches counts refresh-phase fetches per table and result.
	RefreshFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warebox_refresh_fetches_total",
			Help: "Total number of refresh-phase table fetches",
		},
		[]string{"table", "result"},
	)

	// APILatency measures HTTP request latencies of the local API.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warebox_api_latency_seconds",
			Help:    "Local API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
