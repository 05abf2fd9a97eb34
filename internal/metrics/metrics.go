package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SyncQueueDepth tracks the number of buffered sync entries.
	SyncQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "searchsync",
		Name:      "sync_queue_depth",
		Help:      "Buffered write-behind entries awaiting flush",
	})

	// SyncFlushBatch observes drained batch sizes per flush.
	SyncFlushBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "searchsync",
		Name:      "sync_flush_batch_size",
		Help:      "Entries drained per sync flush",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 400},
	})

	// SyncFlushErrors counts dropped bulk batches.
	SyncFlushErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "searchsync",
		Name:      "sync_flush_errors_total",
		Help:      "Bulk flush failures (batch dropped, re-synced by later mutations)",
	})

	// SearchRounds observes native query rounds per assembled search.
	SearchRounds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "searchsync",
		Name:      "search_scan_rounds",
		Help:      "Native query rounds needed to assemble one result page",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	})

	// ReindexCutovers counts completed alias cutovers.
	ReindexCutovers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "searchsync",
		Name:      "reindex_cutovers_total",
		Help:      "Completed reindex alias cutovers",
	})
)

func init() {
	prometheus.MustRegister(
		SyncQueueDepth,
		SyncFlushBatch,
		SyncFlushErrors,
		SearchRounds,
		ReindexCutovers,
	)
}
