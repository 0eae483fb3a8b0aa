package txsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcileResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "sync",
		Name:      "reconcile_results_total",
	}, []string{"status"})

	ReconcileDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "sync",
		Name:      "reconcile_duration_seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	OutdatedDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "sync",
		Name:      "outdated_local_deleted_total",
		Help:      "Local transactions removed because the relayer already indexed them.",
	})

	RefreshResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "sync",
		Name:      "refresh_results_total",
	}, []string{"status"})
)
