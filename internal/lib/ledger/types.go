package ledger

import (
	"time"

	"github.com/gary322/twist-sub006/internal/lib/tier"
)

// StakingPool is the staking state of a single influencer.  The influencer id doubles as the pool id.
type StakingPool struct {
	InfluencerID            string    `json:"influencerId"`
	TotalStaked             uint64    `json:"totalStaked"`
	StakerCount             uint64    `json:"stakerCount"`
	RevenueShareBps         uint64    `json:"revenueShareBps"`
	MinStake                uint64    `json:"minStake"`
	TotalRewardsDistributed uint64    `json:"totalRewardsDistributed"`
	// PendingRewards holds staker share not yet credited to any stake - rounding remainders, or everything accrued
	// while nothing was staked.
	PendingRewards uint64    `json:"pendingRewards"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	// Version is maintained by the Store and bumps on every committed change.
	Version uint64 `json:"version"`
}

func (p StakingPool) ID() string {
	return p.InfluencerID
}

// UserStake is one staker's position in one pool.  A zero Amount means the stake was fully withdrawn; the record is
// kept so claims and history still resolve.
type UserStake struct {
	Staker         string    `json:"staker"`
	PoolID         string    `json:"poolId"`
	Amount         uint64    `json:"amount"`
	StakedAt       time.Time `json:"stakedAt"`
	LastClaimAt    time.Time `json:"lastClaimAt"`
	TotalClaimed   uint64    `json:"totalClaimed"`
	PendingRewards uint64    `json:"pendingRewards"`
	// RewardSeq counts reward credits received.
	RewardSeq uint64 `json:"rewardSeq"`
}

func (s UserStake) Active() bool {
	return s.Amount > 0
}

// StakingReward is an immutable record of one revenue event distributed to a pool.
type StakingReward struct {
	ID              string    `json:"id"`
	PoolID          string    `json:"poolId"`
	DistributedAt   time.Time `json:"distributedAt"`
	EarningAmount   uint64    `json:"earningAmount"`
	StakerShare     uint64    `json:"stakerShare"`
	InfluencerShare uint64    `json:"influencerShare"`
	// Credited is what was added to individual stakes, Carried what was left in the pool's PendingRewards.
	Credited            uint64 `json:"credited"`
	Carried             uint64 `json:"carried"`
	TotalStakedSnapshot uint64 `json:"totalStakedSnapshot"`
}

type Action string

const (
	ActionPoolCreated         Action = "pool_created"
	ActionStake               Action = "stake"
	ActionUnstake             Action = "unstake"
	ActionReward              Action = "reward"
	ActionClaim               Action = "claim"
	ActionTierChanged         Action = "tier_changed"
	ActionRevenueShareUpdated Action = "revenue_share_updated"
	ActionPoolActivated       Action = "pool_activated"
	ActionPoolDeactivated     Action = "pool_deactivated"
)

// HistoryRecord is an append-only log entry.  Amount is the token amount moved, or the new bps for revenue share
// changes.
type HistoryRecord struct {
	ID      string    `json:"id"`
	PoolID  string    `json:"poolId"`
	Staker  string    `json:"staker,omitempty"`
	Action  Action    `json:"action"`
	Amount  uint64    `json:"amount"`
	OldTier tier.Tier `json:"oldTier"`
	NewTier tier.Tier `json:"newTier"`
	At      time.Time `json:"at"`
}

// ClaimReceipt marks an idempotency key as spent.
type ClaimReceipt struct {
	Key       string    `json:"key"`
	PoolID    string    `json:"poolId"`
	Staker    string    `json:"staker"`
	Amount    uint64    `json:"amount"`
	ClaimedAt time.Time `json:"claimedAt"`
}
