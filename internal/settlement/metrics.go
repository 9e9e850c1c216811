package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	settlementAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate",
		Subsystem: "settlement",
		Name:      "attempts_total",
		Help:      "Total settlement attempts by outcome.",
	}, []string{"outcome"}) // "settled", "voided", "reconcile"

	preflightRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate",
		Subsystem: "settlement",
		Name:      "preflight_rejections_total",
		Help:      "Total attempts rejected before the service call, by reason.",
	}, []string{"reason"})

	serviceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paygate",
		Subsystem: "settlement",
		Name:      "service_latency_seconds",
		Help:      "Downstream service call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	settleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paygate",
		Subsystem: "settlement",
		Name:      "duration_seconds",
		Help:      "End-to-end settlement attempt duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	settledAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paygate",
		Subsystem: "settlement",
		Name:      "settled_amount_units",
		Help:      "Distribution of settled amounts in asset base units.",
		Buckets:   []float64{1e3, 1e4, 1e5, 1e6, 1e7, 1e8},
	})
)

func init() {
	prometheus.MustRegister(
		settlementAttempts,
		preflightRejections,
		serviceLatency,
		settleDuration,
		settledAmount,
	)
}
