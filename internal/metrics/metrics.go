package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yourastro_active_sessions",
			Help: "Number of currently active consultation sessions",
		},
		[]string{"kind"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yourastro_sessions_total",
			Help: "Total number of sessions by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	BillingDebitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yourastro_billing_debits_total",
			Help: "Total number of per-minute billing debits issued",
		},
	)

	LowBalanceWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yourastro_low_balance_warnings_total",
			Help: "Total number of low-balance warnings raised during sessions",
		},
	)

	MessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yourastro_messages_total",
			Help: "Total number of chat messages stored",
		},
	)

	WalletTopUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yourastro_wallet_topups_total",
			Help: "Total number of wallet top-ups",
		},
	)
)

func RecordSessionEnd(kind, status string) {
	SessionsTotal.WithLabelValues(kind, status).Inc()
	ActiveSessions.WithLabelValues(kind).Dec()
}

func RecordSessionStart(kind string) {
	ActiveSessions.WithLabelValues(kind).Inc()
}
