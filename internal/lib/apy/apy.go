// Package apy estimates trailing annualized staking yield per pool from recorded reward distributions.  Estimates are
// advisory: they describe what the last window paid, not what any staker will earn.
package apy

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
)

const (
	DefaultWindow = 30 * 24 * time.Hour
	daysPerYear   = 365
	day           = 24 * time.Hour
)

var ErrInvalidWindow = errors.New("apy window must be at least one day")

// Estimate is the trailing yield of one pool.  APYBps is only meaningful when Defined is set - a pool with nothing
// staked has no yield to speak of.
type Estimate struct {
	PoolID       string    `json:"poolId"`
	WindowStart  time.Time `json:"windowStart"`
	WindowDays   uint64    `json:"windowDays"`
	NumRewards   int       `json:"numRewards"`
	TotalRewards uint64    `json:"totalRewards"`
	AvgEarnings  uint64    `json:"avgEarnings"`
	TotalStaked  uint64    `json:"totalStaked"`
	APYBps       uint64    `json:"apyBps"`
	Defined      bool      `json:"defined"`
	ComputedAt   time.Time `json:"computedAt"`
}

// Percent renders the estimate as a percentage with two decimals, or "n/a".
func (e Estimate) Percent() string {
	if !e.Defined {
		return "n/a"
	}
	return decimal.New(int64(min(e.APYBps, 1<<62)), -2).StringFixed(2)
}

func (e Estimate) String() string {
	if !e.Defined {
		return "n/a (nothing staked)"
	}
	return fmt.Sprintf("~%s%% (est. trailing %dd)", e.Percent(), e.WindowDays)
}

// Compute aggregates rewards distributed to pool within window ending at now.  Rewards outside the window are
// ignored, so callers may pass a superset.
func Compute(pool ledger.StakingPool, rewards []ledger.StakingReward, window time.Duration, now time.Time) (Estimate, error) {
	if window < day {
		return Estimate{}, ErrInvalidWindow
	}
	est := Estimate{
		PoolID:      pool.ID(),
		WindowStart: now.Add(-window),
		WindowDays:  uint64(window / day),
		TotalStaked: pool.TotalStaked,
		ComputedAt:  now,
	}
	var earnings uint64
	for _, r := range rewards {
		if r.DistributedAt.Before(est.WindowStart) || r.DistributedAt.After(now) {
			continue
		}
		var err error
		if est.TotalRewards, err = fixedpoint.Add(est.TotalRewards, r.StakerShare); err != nil {
			return Estimate{}, err
		}
		if earnings, err = fixedpoint.Add(earnings, r.EarningAmount); err != nil {
			return Estimate{}, err
		}
		est.NumRewards++
	}
	if est.NumRewards > 0 {
		est.AvgEarnings = earnings / uint64(est.NumRewards)
	}
	if pool.TotalStaked == 0 {
		return est, nil
	}
	bps, err := annualizedBps(est.TotalRewards, pool.TotalStaked, est.WindowDays)
	if err != nil {
		return Estimate{}, err
	}
	est.APYBps, est.Defined = bps, true
	return est, nil
}

// annualizedBps is floor(rewards * 365 * 10000 / (staked * windowDays)).
func annualizedBps(rewards, staked, windowDays uint64) (uint64, error) {
	num := uint256.NewInt(rewards)
	num.Mul(num, uint256.NewInt(daysPerYear*fixedpoint.BpsDenominator))
	den := uint256.NewInt(staked)
	den.Mul(den, uint256.NewInt(windowDays))
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, fixedpoint.ErrArithmeticOverflow
	}
	return num.Uint64(), nil
}
