// Package metrics holds the Prometheus collectors of the risk layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riskguard"

// Risk scoring
var (
	// RiskChecksTotal counts scoring passes by check type and recommendation.
	RiskChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_checks_total",
			Help:      "Risk checks by check type and recommendation",
		},
		[]string{"check_type", "recommendation"},
	)

	// RiskCheckDuration observes the latency of one scoring pass.
	RiskCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_check_duration_seconds",
			Help:      "Risk check latency in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"check_type"},
	)

	// SubCheckFailuresTotal counts sub-checks recovered under a failure policy.
	SubCheckFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subcheck_failures_total",
			Help:      "Scoring sub-checks that failed and were handled by policy",
		},
		[]string{"check", "policy"},
	)

	// BlockedUserHitsTotal counts requests short-circuited by a persisted block.
	BlockedUserHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_user_hits_total",
			Help:      "Requests rejected because the user is blocked",
		},
	)
)

// Webhooks
var (
	// WebhookDeliveriesTotal counts inbound deliveries by provider and outcome.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Inbound webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"}, // accepted, duplicate, rejected, failed
	)
)

// Tokens
var (
	// TokenRevocationsTotal counts revoked tokens by kind (single, bulk).
	TokenRevocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_revocations_total",
			Help:      "Revoked tokens by revocation kind",
		},
		[]string{"kind"},
	)

	// RevokedTokenHitsTotal counts authenticated requests carrying a revoked token.
	RevokedTokenHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revoked_token_hits_total",
			Help:      "Requests rejected because the bearer token was revoked",
		},
	)
)

// Stores
var (
	// StoreEvictionsTotal counts entries removed by background sweeps.
	StoreEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_evictions_total",
			Help:      "Expired entries evicted by background sweeps",
		},
		[]string{"store"},
	)

	// StoreBreakerState reports the external store circuit breaker state (0 closed, 1 half-open, 2 open).
	StoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "External store circuit breaker state",
		},
		[]string{"store"},
	)
)
