// Package decay computes the daily compounding decay of the token supply and the split of the decayed amount between
// the floor and operations treasuries.
package decay

import (
	"errors"
	"fmt"
	"time"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

const (
	DefaultDailyRateBps     = 50
	DefaultTreasurySplitBps = 9000
	DefaultInterval         = 24 * time.Hour

	// DefaultTotalSupplyTokens is the initial supply in whole tokens.
	DefaultTotalSupplyTokens = 1_000_000_000
)

var (
	ErrDecayTooSoon    = errors.New("less than one decay interval has elapsed")
	ErrDecayPaused     = errors.New("decay is paused")
	ErrConservation    = errors.New("decay conservation check failed")
	ErrStateNotFound   = errors.New("decay state not initialized")
	ErrStateExists     = errors.New("decay state already initialized")
	ErrStateConflict   = errors.New("decay state changed concurrently")
	ErrInvalidInterval = errors.New("decay interval must be positive")
)

// CalculateDecayedAmount compounds daily decay over elapsedDays: each day remaining = floor(remaining*(10000-rate)/10000).
// Rounding is applied per day.
func CalculateDecayedAmount(initial, dailyRateBps, elapsedDays uint64) (uint64, error) {
	if dailyRateBps > fixedpoint.BpsDenominator {
		return 0, fmt.Errorf("daily rate %d: %w", dailyRateBps, fixedpoint.ErrInvalidBps)
	}
	if dailyRateBps == 0 {
		return initial, nil
	}
	keep := fixedpoint.BpsDenominator - dailyRateBps
	remaining := initial
	for day := uint64(0); day < elapsedDays && remaining > 0; day++ {
		next, err := fixedpoint.MulBps(remaining, keep)
		if err != nil {
			return 0, err
		}
		remaining = next
	}
	return remaining, nil
}

// CalculateTreasuryDistribution splits decayAmount into the floor treasury share (splitBps of it, floored) and the
// operations share (the remainder).  floor+ops always equals decayAmount.
func CalculateTreasuryDistribution(decayAmount, splitBps uint64) (floor, ops uint64, err error) {
	floor, err = fixedpoint.MulBps(decayAmount, splitBps)
	if err != nil {
		return 0, 0, err
	}
	ops, err = fixedpoint.Sub(decayAmount, floor)
	if err != nil {
		return 0, 0, err
	}
	return floor, ops, nil
}

// State is the platform-wide decay accounting record.
type State struct {
	TotalSupply          uint64    `json:"totalSupply"`
	FloorTreasuryBalance uint64    `json:"floorTreasuryBalance"`
	OpsTreasuryBalance   uint64    `json:"opsTreasuryBalance"`
	TotalDecayed         uint64    `json:"totalDecayed"`
	LastDecayAppliedAt   time.Time `json:"lastDecayAppliedAt"`
	DailyDecayRateBps    uint64    `json:"dailyDecayRateBps"`
	TreasurySplitBps     uint64    `json:"treasurySplitBps"`
	Paused               bool      `json:"paused"`
}

// Application describes one applied (or previewed) decay step.
type Application struct {
	Days         uint64    `json:"days"`
	DecayAmount  uint64    `json:"decayAmount"`
	FloorAmount  uint64    `json:"floorAmount"`
	OpsAmount    uint64    `json:"opsAmount"`
	SupplyBefore uint64    `json:"supplyBefore"`
	SupplyAfter  uint64    `json:"supplyAfter"`
	AppliedAt    time.Time `json:"appliedAt"`
}

// Calculator applies decay to a State in whole intervals.
type Calculator struct {
	interval time.Duration
}

func NewCalculator(interval time.Duration) (*Calculator, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Calculator{interval: interval}, nil
}

func (c *Calculator) Interval() time.Duration {
	return c.interval
}

// ElapsedIntervals is the number of whole intervals between last and now (0 if now is before last).
func (c *Calculator) ElapsedIntervals(last, now time.Time) uint64 {
	if !now.After(last) {
		return 0
	}
	return uint64(now.Sub(last) / c.interval)
}

// NextDue returns when the next whole interval completes.
func (c *Calculator) NextDue(state State) time.Time {
	return state.LastDecayAppliedAt.Add(c.interval)
}

// Apply returns the state after applying every whole interval elapsed up to now.  LastDecayAppliedAt advances by
// whole intervals only, so a partial interval carries into the next run.  The input state is not modified.
func (c *Calculator) Apply(state State, now time.Time) (State, Application, error) {
	if state.Paused {
		return state, Application{}, ErrDecayPaused
	}
	days := c.ElapsedIntervals(state.LastDecayAppliedAt, now)
	if days == 0 {
		return state, Application{}, fmt.Errorf("next decay due at %s: %w", c.NextDue(state).Format(time.RFC3339), ErrDecayTooSoon)
	}
	app, err := Preview(state.TotalSupply, state.DailyDecayRateBps, state.TreasurySplitBps, days)
	if err != nil {
		return state, Application{}, err
	}

	next := state
	next.TotalSupply = app.SupplyAfter
	if next.FloorTreasuryBalance, err = fixedpoint.Add(state.FloorTreasuryBalance, app.FloorAmount); err != nil {
		return state, Application{}, err
	}
	if next.OpsTreasuryBalance, err = fixedpoint.Add(state.OpsTreasuryBalance, app.OpsAmount); err != nil {
		return state, Application{}, err
	}
	if next.TotalDecayed, err = fixedpoint.Add(state.TotalDecayed, app.DecayAmount); err != nil {
		return state, Application{}, err
	}
	next.LastDecayAppliedAt = state.LastDecayAppliedAt.Add(time.Duration(days) * c.interval)
	app.AppliedAt = next.LastDecayAppliedAt

	if err := checkConservation(state, next); err != nil {
		return state, Application{}, err
	}
	return next, app, nil
}

// Preview computes what applying days of decay to supply would produce without touching any state.
func Preview(supply, dailyRateBps, splitBps, days uint64) (Application, error) {
	remaining, err := CalculateDecayedAmount(supply, dailyRateBps, days)
	if err != nil {
		return Application{}, err
	}
	decayed, err := fixedpoint.Sub(supply, remaining)
	if err != nil {
		return Application{}, err
	}
	floor, ops, err := CalculateTreasuryDistribution(decayed, splitBps)
	if err != nil {
		return Application{}, err
	}
	return Application{
		Days:         days,
		DecayAmount:  decayed,
		FloorAmount:  floor,
		OpsAmount:    ops,
		SupplyBefore: supply,
		SupplyAfter:  remaining,
	}, nil
}

// checkConservation verifies treasuries grew by exactly what the supply lost.
func checkConservation(before, after State) error {
	lost := before.TotalSupply - after.TotalSupply
	gained := (after.FloorTreasuryBalance - before.FloorTreasuryBalance) + (after.OpsTreasuryBalance - before.OpsTreasuryBalance)
	if after.TotalSupply > before.TotalSupply || lost != gained || after.TotalDecayed-before.TotalDecayed != lost {
		return fmt.Errorf("%w: supply lost %d, treasuries gained %d", ErrConservation, lost, gained)
	}
	return nil
}

// NewState builds the initial state for a supply and rates.
func NewState(totalSupply, dailyRateBps, splitBps uint64, start time.Time) (State, error) {
	if dailyRateBps > fixedpoint.BpsDenominator || splitBps > fixedpoint.BpsDenominator {
		return State{}, fixedpoint.ErrInvalidBps
	}
	return State{
		TotalSupply:        totalSupply,
		LastDecayAppliedAt: start,
		DailyDecayRateBps:  dailyRateBps,
		TreasurySplitBps:   splitBps,
	}, nil
}
