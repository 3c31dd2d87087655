package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveUsers tracks how many users the scheduler is currently aware of.
	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soltrader_active_users",
		Help: "The number of active users known to the scheduler",
	})

	// BalanceWorkersActive tracks the size of the balance fan-out pool.
	BalanceWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soltrader_balance_workers_active",
		Help: "The number of balance-fetch workers currently active",
	})

	// ScanCycleSeconds tracks the wall-clock duration of a scheduler cycle.
	ScanCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "soltrader_scan_cycle_seconds",
		Help:    "Time taken to complete one scheduler scan cycle",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ScanCycleInterval tracks the scheduler's current adaptive interval.
	ScanCycleInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soltrader_scan_cycle_interval_seconds",
		Help: "The scheduler's current adaptive scan interval in seconds",
	})

	// OpportunitiesFound tracks opportunities surfaced by strategy scans.
	OpportunitiesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrader_opportunities_found_total",
			Help: "The total number of opportunities found by strategy scans",
		},
		[]string{"strategy"},
	)

	// TradesProcessed tracks trade outcomes by status.
	TradesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrader_trades_processed_total",
			Help: "The total number of trades processed by the trade queue",
		},
		[]string{"strategy", "status"}, // status: completed, failed
	)

	// TradeQueueDepth tracks the number of trades waiting for execution.
	TradeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soltrader_trade_queue_depth",
		Help: "The number of trades currently queued for execution",
	})

	// RPCRequestsTotal tracks RPC requests by status.
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrader_rpc_requests_total",
			Help: "The total number of RPC requests",
		},
		[]string{"status"},
	)

	// RPCEndpointHealth tracks RPC endpoint health.
	RPCEndpointHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soltrader_rpc_endpoint_health",
			Help: "Health status of RPC endpoints (1 = healthy, 0 = unhealthy)",
		},
		[]string{"endpoint"},
	)

	// RateLimiterWaitSeconds tracks time spent waiting on the shared rate limiter.
	RateLimiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "soltrader_rate_limiter_wait_seconds",
		Help:    "Time spent waiting for the shared RPC rate limiter",
		Buckets: prometheus.DefBuckets,
	})

	// DatabaseOperations tracks database operations.
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrader_database_operations_total",
			Help: "The total number of database operations",
		},
		[]string{"operation", "status"},
	)

	// PriceCacheHits tracks price cache hit/miss outcomes.
	PriceCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrader_price_cache_requests_total",
			Help: "The total number of price cache lookups",
		},
		[]string{"outcome"}, // hit, miss, coalesced
	)
)

func RecordRPCRequest(status string) {
	RPCRequestsTotal.WithLabelValues(status).Inc()
}

func RecordScanCycle(seconds float64) {
	ScanCycleSeconds.Observe(seconds)
}

func RecordOpportunityFound(strategy string) {
	OpportunitiesFound.WithLabelValues(strategy).Inc()
}

func RecordTradeProcessed(strategy, status string) {
	TradesProcessed.WithLabelValues(strategy, status).Inc()
}

func RecordDatabaseOperation(operation, status string) {
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func SetRPCEndpointHealth(endpoint string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	RPCEndpointHealth.WithLabelValues(endpoint).Set(value)
}

func RecordPriceCacheOutcome(outcome string) {
	PriceCacheHits.WithLabelValues(outcome).Inc()
}
