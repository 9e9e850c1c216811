package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcilePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paygate",
		Subsystem: "reconciliation",
		Name:      "pending_cases",
		Help:      "Number of settlement attempts currently awaiting reconciliation.",
	})

	reconcileResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate",
		Subsystem: "reconciliation",
		Name:      "resolved_total",
		Help:      "Total reconciliation cases closed, by final outcome.",
	}, []string{"outcome"}) // "settled", "voided"

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paygate",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total receipt lookup errors during reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcilePending,
		reconcileResolved,
		reconcileDuration,
		reconcileErrors,
	)
}
