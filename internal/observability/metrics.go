package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TrioMint.
type Metrics struct {
	// --- Allocation ---
	CoinsMinted      prometheus.Counter
	MintRejected     *prometheus.CounterVec
	MintCollisions   prometheus.Counter
	MintDuration     prometheus.Histogram
	MintRollbacks    prometheus.Counter
	SupplyRemaining  prometheus.Gauge

	// --- Transfers ---
	TransfersCompleted   prometheus.Counter
	TransfersRejected    *prometheus.CounterVec
	TransferDuration     prometheus.Histogram
	CompensationsApplied prometheus.Counter
	InconsistentStates   prometheus.Counter

	// --- Ledger ---
	LedgerEntriesWritten prometheus.Counter

	// --- Outbound publishing ---
	EventsPublished prometheus.Counter
	PublishDrops    prometheus.Counter
	PublishErrors   prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opDurationBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	}

	return &Metrics{
		CoinsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_coins_minted_total",
			Help: "Coins successfully minted",
		}),

		MintRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trio_mint_rejected_total",
			Help: "Mint attempts that failed",
		}, []string{"reason"}),

		MintCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_mint_triple_collisions_total",
			Help: "Candidate triples skipped because another mint won them",
		}),

		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trio_mint_duration_seconds",
			Help:    "Time to allocate and mint one coin",
			Buckets: opDurationBuckets,
		}),

		MintRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_mint_rollbacks_total",
			Help: "Coin inserts rolled back after a failed genesis write",
		}),

		SupplyRemaining: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trio_supply_remaining",
			Help: "Unminted triple combinations remaining",
		}),

		TransfersCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_transfers_completed_total",
			Help: "Ownership transfers committed",
		}),

		TransfersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trio_transfers_rejected_total",
			Help: "Transfers rejected (not_found, already_owned, write_failed)",
		}, []string{"reason"}),

		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trio_transfer_duration_seconds",
			Help:    "Time to execute one transfer",
			Buckets: opDurationBuckets,
		}),

		CompensationsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_compensations_applied_total",
			Help: "Successful compensating writes after a partial failure",
		}),

		InconsistentStates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_inconsistent_states_total",
			Help: "Compensation failures requiring operator intervention",
		}),

		LedgerEntriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_ledger_entries_written_total",
			Help: "Ledger entries appended",
		}),

		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_events_published_total",
			Help: "Market events published to NATS",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trio_publish_errors_total",
			Help: "Outbound publish failures",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trio_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trio_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"route"}),
	}
}
