package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(redemptionsTotal, redemptionLatency) }

var (
	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redemption attempts by outcome.",
		},
		[]string{"outcome"}, // 'success', 'not_found', 'already_used', 'already_owned', 'error'
	)

	redemptionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redemption_latency_ms",
			Help:    "Redemption latency distribution in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"outcome"},
	)
)

func ObserveRedemption(outcome string, elapsed time.Duration) {
	o := norm(outcome)
	redemptionsTotal.WithLabelValues(o).Inc()
	redemptionLatency.WithLabelValues(o).Observe(float64(elapsed.Microseconds()) / 1000)
}
