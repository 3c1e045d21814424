// Package metrics exposes the engine's Prometheus instruments. Everything
// registers on the default registry and is served by /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stonepot_games_created_total",
		Help: "Games created",
	})

	StakesPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stonepot_stakes_placed_total",
		Help: "Successful stake debits on join",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stonepot_settlements_total",
		Help: "Settlement runs by result",
	}, []string{"result"})

	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stonepot_settlement_duration_seconds",
		Help:    "Wall time of a settlement run",
		Buckets: prometheus.DefBuckets,
	})

	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stonepot_webhook_events_total",
		Help: "Payment webhook deliveries by event type and outcome",
	}, []string{"event_type", "outcome"})

	WalletConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stonepot_wallet_version_conflicts_total",
		Help: "Wallet mutations that exhausted their optimistic-lock retries",
	})

	BalanceDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stonepot_balance_drift_detected_total",
		Help: "Reconciliation sweeps that found a balance/ledger mismatch",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stonepot_bus_events_dropped_total",
		Help: "Bus events dropped because a subscriber was not keeping up",
	})
)

// ObserveSettlement records one settlement run.
func ObserveSettlement(result string, start time.Time) {
	Settlements.WithLabelValues(result).Inc()
	SettlementDuration.Observe(time.Since(start).Seconds())
}
