package decay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promTotalSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "decay",
		Name:      "total_supply",
	})
	promTotalDecayed = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "decay",
		Name:      "decayed_total",
	})
	promDecayRuns = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "decay",
		Name:      "runs_total",
	})
	promPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "decay",
		Name:      "paused",
	})
)
