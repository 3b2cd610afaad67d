package apy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promEstimateBps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "apy",
		Name:      "estimate_bps",
		Help:      "Trailing annualized staker yield estimate per pool, in basis points",
	}, []string{"pool"})
	promRefreshSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Subsystem: "apy",
		Name:      "refresh_seconds",
		Buckets:   prometheus.DefBuckets,
	})
	promRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "apy",
		Name:      "refresh_errors_total",
	})
)

func publish(estimates map[string]Estimate) {
	promEstimateBps.Reset()
	for id, est := range estimates {
		if est.Defined {
			promEstimateBps.WithLabelValues(id).Set(float64(est.APYBps))
		}
	}
}
