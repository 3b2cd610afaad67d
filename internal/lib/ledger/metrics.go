package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promNumPools = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ledger",
		Name:      "pool_count",
	})
	promNumStakers = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ledger",
		Name:      "staker_count",
	})
	promTotalStaked = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ledger",
		Name:      "staked_total",
	})
	promOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ledger",
		Name:      "operations_total",
	}, []string{"op", "result"})
	promRewardsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "ledger",
		Name:      "rewards_distributed_total",
	})
	promRewardsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "ledger",
		Name:      "rewards_claimed_total",
	})
	promTierChanges = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "ledger",
		Name:      "tier_changes_total",
	})
)

func observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	promOps.WithLabelValues(op, result).Inc()
}
