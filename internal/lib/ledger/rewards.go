package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/misc"
)

// AccrueReward records an influencer earning against poolID and distributes the stakers' share.
func (l *Ledger) AccrueReward(ctx context.Context, poolID string, earningAmount uint64) (StakingReward, error) {
	reward, _, err := l.AccrueRewardWithID(ctx, "", poolID, earningAmount)
	return reward, err
}

// AccrueRewardWithID is AccrueReward for at-least-once producers: if a reward with rewardID was already recorded for
// the pool, nothing changes and the original record is returned with replayed set.  An empty rewardID gets a fresh
// one, same as AccrueReward.
//
// stakerShare = MulBps(earningAmount, revenueShareBps).  The share plus any pool pending rewards is split across
// active stakes pro-rata by amount (floored), and what the floors leave behind stays in the pool's PendingRewards for
// the next distribution.  With nothing staked the whole amount stays pending.
func (l *Ledger) AccrueRewardWithID(ctx context.Context, rewardID, poolID string, earningAmount uint64) (reward StakingReward, replayed bool, err error) {
	if rewardID == "" {
		rewardID = newID()
	}
	reward, replayed, err = l.accrue(ctx, rewardID, poolID, earningAmount)
	observeOp("accrue", err)
	if err != nil {
		return StakingReward{}, false, fmt.Errorf("accrue %s to pool %s: %w", fixedpoint.Format(earningAmount), poolID, err)
	}
	if replayed {
		misc.Infof(l.logger, "reward %s already recorded for pool %s, ignoring replay", rewardID, poolID)
		return reward, true, nil
	}
	promRewardsDistributed.Add(float64(reward.Credited))
	misc.Debugf(l.logger, "pool %s earned %s, staker share:%s credited:%s carried:%s", poolID,
		fixedpoint.Format(reward.EarningAmount), fixedpoint.Format(reward.StakerShare),
		fixedpoint.Format(reward.Credited), fixedpoint.Format(reward.Carried))

	ev := events.New(events.KindRewardDistributed, poolID, reward.DistributedAt)
	ev.ID = reward.ID
	ev.Amount = reward.StakerShare
	l.committed(poolID, ev)
	return reward, false, nil
}

func (l *Ledger) accrue(ctx context.Context, rewardID, poolID string, earningAmount uint64) (StakingReward, bool, error) {
	if earningAmount == 0 {
		return StakingReward{}, false, ErrInvalidAmount
	}
	var (
		reward   StakingReward
		replayed bool
	)
	now := l.now()
	err := l.update(ctx, poolID, func(tx PoolTx) error {
		existing, found, err := tx.Reward(rewardID)
		if err != nil {
			return err
		}
		if found {
			reward, replayed = existing, true
			return nil
		}
		replayed = false

		pool := tx.Pool()
		stakerShare, err := fixedpoint.MulBps(earningAmount, pool.RevenueShareBps)
		if err != nil {
			return err
		}
		distributable, err := fixedpoint.Add(stakerShare, pool.PendingRewards)
		if err != nil {
			return err
		}
		totalDistributed, err := fixedpoint.Add(pool.TotalRewardsDistributed, stakerShare)
		if err != nil {
			return err
		}
		reward = StakingReward{
			ID:                  rewardID,
			PoolID:              poolID,
			DistributedAt:       now,
			EarningAmount:       earningAmount,
			StakerShare:         stakerShare,
			InfluencerShare:     earningAmount - stakerShare,
			TotalStakedSnapshot: pool.TotalStaked,
		}

		var credits []UserStake
		if pool.TotalStaked > 0 && distributable > 0 {
			stakes, err := tx.ActiveStakes()
			if err != nil {
				return err
			}
			credits, reward.Credited, err = splitProRata(distributable, pool.TotalStaked, stakes)
			if err != nil {
				return err
			}
		}
		// validated - nothing below can fail on arithmetic
		reward.Carried = distributable - reward.Credited
		pool.PendingRewards = reward.Carried
		pool.TotalRewardsDistributed = totalDistributed

		for _, s := range credits {
			if err := tx.PutStake(s); err != nil {
				return err
			}
		}
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		if err := tx.AppendReward(reward); err != nil {
			return err
		}
		return tx.AppendHistory(l.newHistory(pool, "", ActionReward, stakerShare, now))
	})
	return reward, replayed, err
}

// splitProRata credits each stake floor(distributable * amount / totalStaked).  The returned stakes are the ones that
// received something.  Stake amounts must sum to totalStaked.
func splitProRata(distributable, totalStaked uint64, stakes []UserStake) ([]UserStake, uint64, error) {
	var sum, credited uint64
	credits := make([]UserStake, 0, len(stakes))
	for _, s := range stakes {
		var err error
		if sum, err = fixedpoint.Add(sum, s.Amount); err != nil {
			return nil, 0, err
		}
		share, err := fixedpoint.MulDiv(distributable, s.Amount, totalStaked)
		if err != nil {
			return nil, 0, err
		}
		if share == 0 {
			continue
		}
		if s.PendingRewards, err = fixedpoint.Add(s.PendingRewards, share); err != nil {
			return nil, 0, err
		}
		if credited, err = fixedpoint.Add(credited, share); err != nil {
			return nil, 0, err
		}
		s.RewardSeq++
		credits = append(credits, s)
	}
	if sum != totalStaked {
		return nil, 0, fmt.Errorf("%w: stakes sum to %d, pool total is %d", ErrInvariant, sum, totalStaked)
	}
	if credited > distributable {
		return nil, 0, fmt.Errorf("%w: credited %d of %d", ErrInvariant, credited, distributable)
	}
	return credits, credited, nil
}

// ClaimResult reports a claim.  Duplicate is set when the claim key was already used - Claimed is then 0.
type ClaimResult struct {
	Key          string
	Claimed      uint64
	TotalClaimed uint64
	Duplicate    bool
}

// Claim pays out staker's pending rewards in poolID.  Claiming again before any new reward is credited returns a
// zero, duplicate result rather than an error.
func (l *Ledger) Claim(ctx context.Context, staker, poolID string) (ClaimResult, error) {
	return l.ClaimWithKey(ctx, staker, poolID, "")
}

// ClaimWithKey claims using a caller supplied idempotency key.  A retry with the same key after success is a no-op.
// An empty key derives one from the stake's reward sequence.
func (l *Ledger) ClaimWithKey(ctx context.Context, staker, poolID, key string) (ClaimResult, error) {
	res, err := l.claim(ctx, staker, poolID, key)
	observeOp("claim", err)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim from pool %s by %s: %w", poolID, staker, err)
	}
	if res.Duplicate {
		misc.Debugf(l.logger, "duplicate claim %s from pool %s by %s", res.Key, poolID, staker)
		return res, nil
	}
	promRewardsClaimed.Add(float64(res.Claimed))
	misc.Infof(l.logger, "claimed %s from pool %s by %s", fixedpoint.Format(res.Claimed), poolID, staker)

	ev := events.New(events.KindRewardClaimed, poolID, l.now())
	ev.Staker = staker
	ev.Amount = res.Claimed
	l.committed(poolID, ev)
	return res, nil
}

func (l *Ledger) claim(ctx context.Context, staker, poolID, key string) (ClaimResult, error) {
	if staker == "" {
		return ClaimResult{}, fmt.Errorf("staker: %w", ErrInvalidID)
	}
	var res ClaimResult
	now := l.now()
	err := l.update(ctx, poolID, func(tx PoolTx) error {
		stake, found, err := tx.Stake(staker)
		if err != nil {
			return err
		}
		if !found {
			return ErrNothingToClaim
		}
		derived := derivedClaimKey(poolID, staker, stake.RewardSeq)
		claimKey := key
		if claimKey == "" {
			claimKey = derived
		}
		receipt, used, err := tx.ClaimReceipt(claimKey)
		if err != nil {
			return err
		}
		if used {
			if receipt.Staker != staker {
				return ErrInvalidClaimKey
			}
			res = ClaimResult{Key: claimKey, TotalClaimed: stake.TotalClaimed, Duplicate: true}
			return nil
		}
		// every successful claim also spends the derived key, so it marks "claimed up to RewardSeq" whatever key
		// the caller used
		_, seqClaimed, err := tx.ClaimReceipt(derived)
		if err != nil {
			return err
		}
		if stake.PendingRewards == 0 {
			if seqClaimed {
				res = ClaimResult{Key: derived, TotalClaimed: stake.TotalClaimed, Duplicate: true}
				return nil
			}
			return ErrNothingToClaim
		}
		total, err := fixedpoint.Add(stake.TotalClaimed, stake.PendingRewards)
		if err != nil {
			return err
		}
		claimed := stake.PendingRewards
		stake.PendingRewards = 0
		stake.TotalClaimed = total
		stake.LastClaimAt = now

		if err := tx.PutStake(stake); err != nil {
			return err
		}
		err = tx.PutClaimReceipt(ClaimReceipt{Key: claimKey, PoolID: poolID, Staker: staker, Amount: claimed, ClaimedAt: now})
		if err != nil {
			return err
		}
		if claimKey != derived && !seqClaimed {
			err = tx.PutClaimReceipt(ClaimReceipt{Key: derived, PoolID: poolID, Staker: staker, Amount: claimed, ClaimedAt: now})
			if err != nil {
				return err
			}
		}
		if err := tx.AppendHistory(l.newHistory(tx.Pool(), staker, ActionClaim, claimed, now)); err != nil {
			return err
		}
		res = ClaimResult{Key: claimKey, Claimed: claimed, TotalClaimed: total}
		return nil
	})
	return res, err
}

// derivedClaimKey identifies "the claim of everything credited up to seq" for one stake.
func derivedClaimKey(poolID, staker string, seq uint64) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(poolID))
	h.Write([]byte{0})
	h.Write([]byte(staker))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	return "auto-" + hex.EncodeToString(h.Sum(nil))
}
