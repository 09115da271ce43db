package whale

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsQueuedTotal counts trade observations merged into the
	// accumulator map.
	ObservationsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_whale_observations_queued_total",
		Help: "Total trade observations merged into the whale accumulator",
	})

	// QueueDropsTotal counts observations dropped because the queue
	// buffer was full.
	QueueDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_whale_observation_queue_drops_total",
		Help: "Total observations dropped due to a full observation queue",
	})

	// WalletsPromotedTotal counts wallets promoted to the whale index.
	WalletsPromotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_whale_wallets_promoted_total",
		Help: "Total wallets promoted into the whale index",
	})

	// AnalysisBatchDurationSeconds times a single analyzer batch pass.
	AnalysisBatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_whale_analysis_batch_duration_seconds",
		Help:    "Duration of one whale-analysis batch pass",
		Buckets: prometheus.DefBuckets,
	})

	// AnalysisBatchSize tracks the size of the most recent analyzer batch.
	AnalysisBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_whale_analysis_batch_size",
		Help: "Number of wallets analyzed in the most recent batch",
	})
)
