package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds Prometheus metrics for the event synchronizer
type SyncMetrics struct {
	EventsProcessed *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	LastSyncedBlock *prometheus.GaugeVec
	CatchUpLatency  prometheus.Histogram
}

// NewSyncMetrics registers synchronizer metrics with reg. A nil reg
// creates unregistered collectors.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_events_processed_total",
			Help: "Total number of contract events written to the backend",
		}, []string{"event"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_events_failed_total",
			Help: "Total number of contract events that could not be synchronized",
		}, []string{"event"}),
		LastSyncedBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sync_last_synced_block",
			Help: "Last block reconciled per contract",
		}, []string{"contract"}),
		CatchUpLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_catch_up_latency_seconds",
			Help:    "Time taken to replay a batch of blocks",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// TradeMetrics holds Prometheus metrics for user-initiated transactions
type TradeMetrics struct {
	Submitted *prometheus.CounterVec
	Outcomes  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

// NewTradeMetrics registers transaction metrics with reg
func NewTradeMetrics(reg prometheus.Registerer) *TradeMetrics {
	factory := promauto.With(reg)
	return &TradeMetrics{
		Submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_transactions_submitted_total",
			Help: "Total number of transactions sent to the network",
		}, []string{"action"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_outcomes_total",
			Help: "Transaction outcomes by action and result",
		}, []string{"action", "result"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trade_duration_seconds",
			Help:    "Time from estimate to confirmation",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"action"}),
	}
}
