package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerOperations counts ledger operations by name and outcome code.
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talk_ledger_operations_total",
		Help: "Total number of ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// LikeToggles counts like and unlike transitions.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talk_like_toggles_total",
		Help: "Total number of like state transitions",
	}, []string{"direction"})

	// LikeScanLength observes how many likes were scanned to find a (post, liker) match.
	LikeScanLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "talk_like_scan_length",
		Help:    "Number of likes scanned per like call",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// StoreTransactionLatency records store transaction latency by operation.
	StoreTransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talk_store_transaction_latency_seconds",
		Help:    "Store transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// CacheErrors counts Redis errors by command.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talk_cache_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackTransaction returns a function that records transaction latency when called (e.g. defer).
func TrackTransaction(operation string) func() {
	start := time.Now()
	return func() {
		StoreTransactionLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordOperation counts one finished ledger operation.
func RecordOperation(operation, outcome string) {
	LedgerOperations.WithLabelValues(operation, outcome).Inc()
}
