package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders recorded from checkouts",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of checkouts that could not be recorded",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled cash orders",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by target status",
	}, []string{"status"})

	LedgerCreditedCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_credited_cents_total",
		Help: "Minor units credited to seller balances",
	}, []string{"type"})

	LedgerDebitedCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_debited_cents_total",
		Help: "Minor units debited from seller balances",
	}, []string{"type"})

	LedgerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Refunds and payouts rejected before reaching the gateway",
	}, []string{"operation", "reason"})

	LedgerDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_drift_total",
		Help: "Seller audits where the balance disagrees with the transaction log",
	})

	RefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total number of completed refunds",
	})

	PayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_total",
		Help: "Total number of completed payouts",
	})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	GatewayFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_failures_total",
		Help: "Payment gateway calls that failed",
	}, []string{"kind"})

	ReconciliationRiskTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_risk_total",
		Help: "Gateway operations whose local commit is missing",
	}, []string{"kind"})

	PointsAwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_awarded_total",
		Help: "Total points awarded for scans",
	})

	ScansRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scans_rejected_total",
		Help: "Scans that earned no points",
	}, []string{"reason"})

	RewardsRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewards_redeemed_total",
		Help: "Total number of reward redemptions",
	})

	RewardRedemptionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_redemptions_rejected_total",
		Help: "Reward redemptions that were refused",
	}, []string{"reason"})

	OfferTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_transitions_total",
		Help: "Resale offer status changes by resulting status",
	}, []string{"status"})

	BadgeChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_changes_total",
		Help: "Seller tier changes by new tier",
	}, []string{"tier"})

	HookFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hook_failures_total",
		Help: "Fire-and-forget hooks that failed",
	}, []string{"hook"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Kafka events handled by workers",
	}, []string{"type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
