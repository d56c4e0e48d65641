package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Transaction pipeline
	// ============================================
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_transactions_submitted_total",
			Help: "Transactions submitted to the chain, by operation",
		},
		[]string{"operation"},
	)

	TransactionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_transactions_failed_total",
			Help: "Transaction pipeline failures, by operation and reason",
		},
		[]string{"operation", "reason"},
	)

	TransactionsAmbiguous = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_transactions_ambiguous_total",
			Help: "Submitted transactions whose receipt wait timed out",
		},
		[]string{"operation"},
	)

	// ============================================
	// RPC facade
	// ============================================
	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_rpc_errors_total",
			Help: "RPC call failures, by operation",
		},
		[]string{"op"},
	)

	// ============================================
	// History reconstruction
	// ============================================
	HistoryScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_history_scans_total",
		Help: "History reconstruction runs",
	})

	HistoryWindowsScanned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_history_windows_scanned",
		Help:    "Block windows scanned per history reconstruction",
		Buckets: []float64{1, 2, 5, 10, 20, 40},
	})

	// ============================================
	// Sessions
	// ============================================
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_active_sessions",
		Help: "Sessions currently held in memory",
	})

	WalletsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_wallets_created_total",
		Help: "Custodial wallets generated since process start",
	})

	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_handled_total",
			Help: "Inbound chat events dispatched, by kind",
		},
		[]string{"kind"},
	)
)
