package ledger

import (
	"context"
	"time"

	"github.com/gary322/twist-sub006/internal/lib/events"
)

// Store is the persistence collaborator for the ledger.
type Store interface {
	// CreatePool persists a new pool along with its creation history record.  ErrPoolExists if already present.
	CreatePool(ctx context.Context, pool StakingPool, rec HistoryRecord) error
	GetPool(ctx context.Context, poolID string) (StakingPool, error)
	ListPools(ctx context.Context) ([]StakingPool, error)
	// GetStake returns ErrStakeNotFound if the staker never staked into the pool.
	GetStake(ctx context.Context, poolID, staker string) (UserStake, error)
	ListStakes(ctx context.Context, poolID string) ([]UserStake, error)
	RewardsSince(ctx context.Context, poolID string, since time.Time) ([]StakingReward, error)
	// History returns the newest records first, at most limit (0 for all).
	History(ctx context.Context, poolID string, limit int) ([]HistoryRecord, error)

	// UpdatePool runs fn against a consistent view of one pool.  Writes made through tx are applied together when
	// fn returns nil and discarded otherwise.  ErrPoolNotFound if the pool doesn't exist, ErrConflict if it was
	// changed by someone else before commit.
	UpdatePool(ctx context.Context, poolID string, fn func(tx PoolTx) error) error
}

// PoolTx is the view of a single pool inside Store.UpdatePool.
type PoolTx interface {
	Pool() StakingPool
	Stake(staker string) (UserStake, bool, error)
	// ActiveStakes returns every stake with a non-zero amount.
	ActiveStakes() ([]UserStake, error)
	Reward(id string) (StakingReward, bool, error)
	ClaimReceipt(key string) (ClaimReceipt, bool, error)

	PutPool(pool StakingPool) error
	PutStake(stake UserStake) error
	AppendReward(reward StakingReward) error
	AppendHistory(rec HistoryRecord) error
	PutClaimReceipt(receipt ClaimReceipt) error
}

// Notifier receives events after a change is committed.  Notify must not block.
type Notifier interface {
	Notify(ev events.Event)
}

// Invalidator drops cached reads that include a pool.
type Invalidator interface {
	InvalidatePool(poolID string)
}
