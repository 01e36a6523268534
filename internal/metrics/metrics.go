package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trade ingestion metrics
	TradesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_trades_ingested_total",
			Help: "Total number of trades ingested into the store",
		},
		[]string{"provenance"}, // stream, activity, enriched
	)

	TradesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whalewatch_trades_deduplicated_total",
			Help: "Total number of trade appends rejected as duplicate ids",
		},
	)

	StoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whalewatch_store_trades",
			Help: "Number of trades currently held in the trade store",
		},
	)

	StoreCleanups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whalewatch_store_cleanups_total",
			Help: "Total number of retention cleanups run by the trade store",
		},
	)

	// Universe metrics
	UniverseRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_universe_rebuilds_total",
			Help: "Total number of whale universe rebuilds",
		},
		[]string{"status"}, // success, error
	)

	UniverseRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whalewatch_universe_rebuild_duration_seconds",
			Help:    "Duration of whale universe rebuilds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UniverseSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whalewatch_universe_whales",
			Help: "Number of classified whales by tier",
		},
		[]string{"tier"}, // top10, top50, tracked
	)

	// Position ledger metrics
	OpenPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whalewatch_ledger_positions",
			Help: "Number of positions currently tracked by the ledger",
		},
	)

	// Activity monitor metrics
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whalewatch_poll_cycles_total",
			Help: "Total number of activity polling cycles",
		},
	)

	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_poll_requests_total",
			Help: "Total number of per-whale activity requests",
		},
		[]string{"status"}, // success, error
	)

	// Tracker metrics
	WhaleTradesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whalewatch_whale_trades_emitted_total",
			Help: "Total number of whale trade events emitted",
		},
	)

	CachedWhaleTrades = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whalewatch_cached_whale_trades",
			Help: "Number of price-snapshotted whale trades currently cached",
		},
	)

	PriceUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whalewatch_price_updates_total",
			Help: "Total number of price/book events applied to the price cache",
		},
	)
)
