package ledger

import (
	"context"
	"fmt"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/misc"
)

// CreatePool opens a staking pool for influencerID.  A zero minStake uses the configured default.
func (l *Ledger) CreatePool(ctx context.Context, influencerID string, revenueShareBps, minStake uint64) (StakingPool, error) {
	pool, err := l.createPool(ctx, influencerID, revenueShareBps, minStake)
	observeOp("create_pool", err)
	if err != nil {
		return StakingPool{}, fmt.Errorf("create pool %s: %w", influencerID, err)
	}
	misc.Infof(l.logger, "created pool %s, revenue share:%d bps, min stake:%s", influencerID, revenueShareBps,
		fixedpoint.Format(pool.MinStake))
	promNumPools.Inc()
	l.committed(influencerID)
	return pool, nil
}

func (l *Ledger) createPool(ctx context.Context, influencerID string, revenueShareBps, minStake uint64) (StakingPool, error) {
	if influencerID == "" {
		return StakingPool{}, fmt.Errorf("influencer id: %w", ErrInvalidID)
	}
	if err := l.checkRevenueShare(revenueShareBps); err != nil {
		return StakingPool{}, err
	}
	if minStake == 0 {
		minStake = l.cfg.DefaultMinStake
	}
	if minStake < l.cfg.AbsoluteMinStake {
		return StakingPool{}, fmt.Errorf("minimum stake %s is below %s: %w", fixedpoint.Format(minStake),
			fixedpoint.Format(l.cfg.AbsoluteMinStake), ErrBelowMinimumStake)
	}
	now := l.now()
	pool := StakingPool{
		InfluencerID:    influencerID,
		RevenueShareBps: revenueShareBps,
		MinStake:        minStake,
		IsActive:        true,
		CreatedAt:       now,
	}
	rec := l.newHistory(pool, "", ActionPoolCreated, revenueShareBps, now)
	if err := l.store.CreatePool(ctx, pool, rec); err != nil {
		return StakingPool{}, err
	}
	return l.store.GetPool(ctx, influencerID)
}

func (l *Ledger) checkRevenueShare(bps uint64) error {
	if bps > l.cfg.MaxRevenueShareBps {
		return fmt.Errorf("%d bps, max %d: %w", bps, l.cfg.MaxRevenueShareBps, ErrInvalidRevenueShare)
	}
	return nil
}

// UpdateRevenueShare changes the share of future earnings paid to stakers.  Already accrued rewards are unaffected.
func (l *Ledger) UpdateRevenueShare(ctx context.Context, poolID string, revenueShareBps uint64) (StakingPool, error) {
	pool, err := l.adminUpdate(ctx, poolID, ActionRevenueShareUpdated, revenueShareBps, func(pool *StakingPool) error {
		if err := l.checkRevenueShare(revenueShareBps); err != nil {
			return err
		}
		pool.RevenueShareBps = revenueShareBps
		return nil
	})
	observeOp("revenue_share", err)
	if err != nil {
		return StakingPool{}, fmt.Errorf("update revenue share of pool %s: %w", poolID, err)
	}
	misc.Infof(l.logger, "pool %s revenue share now %d bps", poolID, revenueShareBps)
	return pool, nil
}

// SetPoolActive pauses (active=false) or resumes a pool.  Paused pools reject new stakes only.
func (l *Ledger) SetPoolActive(ctx context.Context, poolID string, active bool) (StakingPool, error) {
	action := ActionPoolDeactivated
	if active {
		action = ActionPoolActivated
	}
	pool, err := l.adminUpdate(ctx, poolID, action, 0, func(pool *StakingPool) error {
		pool.IsActive = active
		return nil
	})
	observeOp(string(action), err)
	if err != nil {
		return StakingPool{}, fmt.Errorf("set pool %s active=%v: %w", poolID, active, err)
	}
	misc.Infof(l.logger, "pool %s active:%v", poolID, active)
	return pool, nil
}

func (l *Ledger) adminUpdate(ctx context.Context, poolID string, action Action, amount uint64, change func(pool *StakingPool) error) (StakingPool, error) {
	var result StakingPool
	now := l.now()
	err := l.update(ctx, poolID, func(tx PoolTx) error {
		pool := tx.Pool()
		if err := change(&pool); err != nil {
			return err
		}
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		result = pool
		return tx.AppendHistory(l.newHistory(pool, "", action, amount, now))
	})
	if err != nil {
		return StakingPool{}, err
	}
	l.committed(poolID)
	return result, nil
}
