// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderingOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learnpath",
		Name:      "ordering_operations_total",
		Help:      "Curriculum ordering mutations by operation.",
	}, []string{"op"})

	AttemptsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "learnpath",
		Name:      "attempts_submitted_total",
		Help:      "Quiz attempts scored and completed.",
	})

	AttemptPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "learnpath",
		Name:      "attempt_percentage",
		Help:      "Distribution of attempt percentages.",
		Buckets:   []float64{20, 40, 60, 80, 90, 95, 100},
	})

	BadgesGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learnpath",
		Name:      "badges_granted_total",
		Help:      "Badge awards created, by badge.",
	}, []string{"badge"})

	LeaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "learnpath",
		Name:      "leaderboard_cache_total",
		Help:      "Leaderboard cache lookups by result.",
	}, []string{"result"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "learnpath",
		Name:      "ws_connections",
		Help:      "Open leaderboard websocket connections.",
	})
)
