package ledger

import (
	"context"
	"fmt"

	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/misc"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

// StakeResult is the committed state after a stake or unstake.
type StakeResult struct {
	Pool    StakingPool
	Stake   UserStake
	OldTier tier.Tier
	NewTier tier.Tier
}

func (r StakeResult) TierChanged() bool {
	return r.OldTier != r.NewTier
}

// Stake adds amount to staker's position in poolID.
func (l *Ledger) Stake(ctx context.Context, staker, poolID string, amount uint64) (StakeResult, error) {
	res, err := l.stake(ctx, staker, poolID, amount)
	observeOp("stake", err)
	if err != nil {
		return StakeResult{}, fmt.Errorf("stake %s into pool %s: %w", fixedpoint.Format(amount), poolID, err)
	}
	misc.Debugf(l.logger, "staked %s into pool %s by %s, pool total:%s", fixedpoint.Format(amount), poolID, staker,
		fixedpoint.Format(res.Pool.TotalStaked))
	l.committed(poolID, l.tierEvents(res)...)
	return res, nil
}

func (l *Ledger) stake(ctx context.Context, staker, poolID string, amount uint64) (StakeResult, error) {
	if staker == "" {
		return StakeResult{}, fmt.Errorf("staker: %w", ErrInvalidID)
	}
	var res StakeResult
	now := l.now()
	err := l.update(ctx, poolID, func(tx PoolTx) error {
		pool := tx.Pool()
		if !pool.IsActive {
			return ErrPoolInactive
		}
		if amount == 0 || amount < pool.MinStake {
			return fmt.Errorf("minimum is %s: %w", fixedpoint.Format(pool.MinStake), ErrBelowMinimumStake)
		}
		stake, found, err := tx.Stake(staker)
		if err != nil {
			return err
		}
		newTotal, err := fixedpoint.Add(pool.TotalStaked, amount)
		if err != nil {
			return err
		}
		newAmount, err := fixedpoint.Add(stake.Amount, amount)
		if err != nil {
			return err
		}
		newCount := pool.StakerCount
		if !stake.Active() {
			if newCount, err = fixedpoint.Add(pool.StakerCount, 1); err != nil {
				return err
			}
		}

		oldTier := l.tierOf(pool, stake)
		if !found {
			stake = UserStake{Staker: staker, PoolID: poolID}
		}
		if !stake.Active() {
			stake.StakedAt = now
		}
		stake.Amount = newAmount
		pool.TotalStaked = newTotal
		pool.StakerCount = newCount
		newTier := l.tierOf(pool, stake)

		res = StakeResult{Pool: pool, Stake: stake, OldTier: oldTier, NewTier: newTier}
		return l.writeStakeChange(tx, res, ActionStake, amount)
	})
	return res, err
}

// Unstake withdraws amount from staker's position.  Allowed on inactive pools.
func (l *Ledger) Unstake(ctx context.Context, staker, poolID string, amount uint64) (StakeResult, error) {
	res, err := l.unstake(ctx, staker, poolID, amount)
	observeOp("unstake", err)
	if err != nil {
		return StakeResult{}, fmt.Errorf("unstake %s from pool %s: %w", fixedpoint.Format(amount), poolID, err)
	}
	misc.Debugf(l.logger, "unstaked %s from pool %s by %s, pool total:%s", fixedpoint.Format(amount), poolID, staker,
		fixedpoint.Format(res.Pool.TotalStaked))
	l.committed(poolID, l.tierEvents(res)...)
	return res, nil
}

func (l *Ledger) unstake(ctx context.Context, staker, poolID string, amount uint64) (StakeResult, error) {
	if staker == "" {
		return StakeResult{}, fmt.Errorf("staker: %w", ErrInvalidID)
	}
	if amount == 0 {
		return StakeResult{}, ErrInvalidAmount
	}
	var res StakeResult
	err := l.update(ctx, poolID, func(tx PoolTx) error {
		pool := tx.Pool()
		stake, found, err := tx.Stake(staker)
		if err != nil {
			return err
		}
		if !found || amount > stake.Amount {
			return fmt.Errorf("staked %s: %w", fixedpoint.Format(stake.Amount), ErrInsufficientStake)
		}
		newAmount := stake.Amount - amount
		newTotal, err := fixedpoint.Sub(pool.TotalStaked, amount)
		if err != nil {
			return fmt.Errorf("%w: pool total below stake: %w", ErrInvariant, err)
		}
		newCount := pool.StakerCount
		if newAmount == 0 {
			if newCount, err = fixedpoint.Sub(pool.StakerCount, 1); err != nil {
				return fmt.Errorf("%w: staker count: %w", ErrInvariant, err)
			}
		}

		oldTier := l.tierOf(pool, stake)
		stake.Amount = newAmount
		pool.TotalStaked = newTotal
		pool.StakerCount = newCount
		newTier := l.tierOf(pool, stake)

		res = StakeResult{Pool: pool, Stake: stake, OldTier: oldTier, NewTier: newTier}
		return l.writeStakeChange(tx, res, ActionUnstake, amount)
	})
	return res, err
}

func (l *Ledger) writeStakeChange(tx PoolTx, res StakeResult, action Action, amount uint64) error {
	now := l.now()
	if err := tx.PutPool(res.Pool); err != nil {
		return err
	}
	if err := tx.PutStake(res.Stake); err != nil {
		return err
	}
	rec := l.newHistory(res.Pool, res.Stake.Staker, action, amount, now)
	rec.OldTier, rec.NewTier = res.OldTier, res.NewTier
	if err := tx.AppendHistory(rec); err != nil {
		return err
	}
	if !res.TierChanged() {
		return nil
	}
	tierRec := rec
	tierRec.ID = newID()
	tierRec.Action = ActionTierChanged
	tierRec.Amount = l.tierBasisAmount(res)
	if l.cfg.TierBasis == tier.BasisPool {
		tierRec.Staker = ""
	}
	return tx.AppendHistory(tierRec)
}

func (l *Ledger) tierBasisAmount(res StakeResult) uint64 {
	if l.cfg.TierBasis == tier.BasisStake {
		return res.Stake.Amount
	}
	return res.Pool.TotalStaked
}

func (l *Ledger) tierEvents(res StakeResult) []events.Event {
	if !res.TierChanged() {
		return nil
	}
	promTierChanges.Inc()
	misc.Infof(l.logger, "pool %s tier changed %s -> %s", res.Pool.ID(), res.OldTier, res.NewTier)
	ev := events.New(events.KindTierChanged, res.Pool.ID(), l.now())
	ev.OldTier, ev.NewTier = res.OldTier, res.NewTier
	ev.Amount = l.tierBasisAmount(res)
	if l.cfg.TierBasis == tier.BasisStake {
		ev.Staker = res.Stake.Staker
	}
	return []events.Event{ev}
}
