// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_submissions_total",
			Help: "Total number of flag submissions by outcome",
		},
		[]string{"outcome"},
	)

	HintUnlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hint_unlocks_total",
			Help: "Total number of hint unlock attempts by outcome",
		},
		[]string{"outcome"},
	)

	KothClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koth_claims_total",
			Help: "Total number of KOTH claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "score_reconciliation_mismatches_total",
			Help: "Times the incremental score disagreed with the ledger fold",
		},
	)

	LeaderboardRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_rebuild_duration_seconds",
			Help:    "Time spent rebuilding the leaderboard projection",
			Buckets: prometheus.DefBuckets,
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
