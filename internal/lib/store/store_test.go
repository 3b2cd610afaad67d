package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

type testStore interface {
	ledger.Store
	decay.StateStore
}

func forEachStore(t *testing.T, fn func(t *testing.T, s testStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewMem()
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createPool(t *testing.T, s testStore, id string) {
	pool := ledger.StakingPool{InfluencerID: id, RevenueShareBps: 2500, MinStake: 1e8, IsActive: true, CreatedAt: t0}
	rec := ledger.HistoryRecord{ID: id + "-created", PoolID: id, Action: ledger.ActionPoolCreated, Amount: 2500, At: t0}
	require.NoError(t, s.CreatePool(context.Background(), pool, rec))
}

func TestCreateAndGetPool(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		createPool(t, s, "alice")
		createPool(t, s, "bob")

		err := s.CreatePool(ctx, ledger.StakingPool{InfluencerID: "alice"}, ledger.HistoryRecord{ID: "dup", PoolID: "alice"})
		assert.ErrorIs(t, err, ledger.ErrPoolExists)

		pool, err := s.GetPool(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(2500), pool.RevenueShareBps)
		assert.Equal(t, uint64(1e8), pool.MinStake)
		assert.True(t, pool.IsActive)
		assert.True(t, pool.CreatedAt.Equal(t0))
		assert.Equal(t, uint64(1), pool.Version)

		_, err = s.GetPool(ctx, "nobody")
		assert.ErrorIs(t, err, ledger.ErrPoolNotFound)

		pools, err := s.ListPools(ctx)
		require.NoError(t, err)
		require.Len(t, pools, 2)
		assert.Equal(t, "alice", pools[0].ID())
		assert.Equal(t, "bob", pools[1].ID())
	})
}

func TestUpdatePoolCommitsAtomically(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		createPool(t, s, "alice")

		err := s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			pool := tx.Pool()
			pool.TotalStaked = 18_446_744_073_709_551_615 // max uint64 must survive storage
			pool.StakerCount = 1
			require.NoError(t, tx.PutPool(pool))
			require.NoError(t, tx.PutStake(ledger.UserStake{Staker: "s1", PoolID: "alice", Amount: pool.TotalStaked, StakedAt: t0}))

			// reads inside the transaction see staged writes
			st, found, err := tx.Stake("s1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, pool.TotalStaked, st.Amount)
			return tx.AppendHistory(ledger.HistoryRecord{ID: "h1", PoolID: "alice", Staker: "s1", Action: ledger.ActionStake,
				Amount: pool.TotalStaked, NewTier: tier.Platinum, At: t0})
		})
		require.NoError(t, err)

		pool, err := s.GetPool(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(18_446_744_073_709_551_615), pool.TotalStaked)
		assert.Equal(t, uint64(2), pool.Version)

		st, err := s.GetStake(ctx, "alice", "s1")
		require.NoError(t, err)
		assert.Equal(t, pool.TotalStaked, st.Amount)
		assert.True(t, st.StakedAt.Equal(t0))

		// a failing fn leaves nothing behind
		errBoom := errors.New("boom")
		err = s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			require.NoError(t, tx.PutStake(ledger.UserStake{Staker: "s2", PoolID: "alice", Amount: 5}))
			require.NoError(t, tx.AppendHistory(ledger.HistoryRecord{ID: "h2", PoolID: "alice", Action: ledger.ActionStake}))
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		_, err = s.GetStake(ctx, "alice", "s2")
		assert.ErrorIs(t, err, ledger.ErrStakeNotFound)

		hist, err := s.History(ctx, "alice", 0)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, "h1", hist[0].ID)
		assert.Equal(t, tier.Platinum, hist[0].NewTier)
		assert.Equal(t, ledger.ActionPoolCreated, hist[1].Action)

		hist, err = s.History(ctx, "alice", 1)
		require.NoError(t, err)
		assert.Len(t, hist, 1)

		err = s.UpdatePool(ctx, "nobody", func(tx ledger.PoolTx) error { return nil })
		assert.ErrorIs(t, err, ledger.ErrPoolNotFound)
	})
}

func TestActiveStakesAndRewards(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		createPool(t, s, "alice")

		err := s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			for _, st := range []ledger.UserStake{
				{Staker: "b", PoolID: "alice", Amount: 20},
				{Staker: "a", PoolID: "alice", Amount: 10},
				{Staker: "c", PoolID: "alice", Amount: 0},
			} {
				if err := tx.PutStake(st); err != nil {
					return err
				}
			}
			active, err := tx.ActiveStakes()
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "a", active[0].Staker)
			return tx.AppendReward(ledger.StakingReward{ID: "r1", PoolID: "alice", DistributedAt: t0, EarningAmount: 100, StakerShare: 25})
		})
		require.NoError(t, err)

		err = s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			r, found, err := tx.Reward("r1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, uint64(25), r.StakerShare)
			_, found, err = tx.Reward("r2")
			require.NoError(t, err)
			assert.False(t, found)
			return tx.AppendReward(ledger.StakingReward{ID: "r2", PoolID: "alice", DistributedAt: t0.Add(time.Hour), EarningAmount: 7})
		})
		require.NoError(t, err)

		all, err := s.ListStakes(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		rewards, err := s.RewardsSince(ctx, "alice", t0.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, rewards, 1)
		assert.Equal(t, "r2", rewards[0].ID)

		rewards, err = s.RewardsSince(ctx, "alice", t0)
		require.NoError(t, err)
		assert.Len(t, rewards, 2)
	})
}

func TestClaimReceipts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		createPool(t, s, "alice")
		err := s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			return tx.PutClaimReceipt(ledger.ClaimReceipt{Key: "k1", PoolID: "alice", Staker: "s1", Amount: 9, ClaimedAt: t0})
		})
		require.NoError(t, err)
		err = s.UpdatePool(ctx, "alice", func(tx ledger.PoolTx) error {
			r, found, err := tx.ClaimReceipt("k1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "s1", r.Staker)
			assert.Equal(t, uint64(9), r.Amount)
			_, found, err = tx.ClaimReceipt("k2")
			require.NoError(t, err)
			assert.False(t, found)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestDecayStateCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		_, err := s.LoadState(ctx)
		assert.ErrorIs(t, err, decay.ErrStateNotFound)

		initial, err := decay.NewState(1_000_000_000_000_000_000, 50, 9000, t0)
		require.NoError(t, err)
		require.NoError(t, s.InitState(ctx, initial))
		assert.ErrorIs(t, s.InitState(ctx, initial), decay.ErrStateExists)

		loaded, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, initial.TotalSupply, loaded.TotalSupply)
		assert.True(t, loaded.LastDecayAppliedAt.Equal(t0))

		calc, err := decay.NewCalculator(decay.DefaultInterval)
		require.NoError(t, err)
		next, _, err := calc.Apply(loaded, t0.Add(25*time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.SaveState(ctx, loaded, next))

		// a second writer holding the stale state loses
		assert.ErrorIs(t, s.SaveState(ctx, loaded, next), decay.ErrStateConflict)

		got, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, next.TotalSupply, got.TotalSupply)
		assert.Equal(t, next.FloorTreasuryBalance, got.FloorTreasuryBalance)
		assert.Equal(t, next.OpsTreasuryBalance, got.OpsTreasuryBalance)
		assert.Equal(t, next.TotalDecayed, got.TotalDecayed)
	})
}

func TestSQLiteHistoryIsAppendOnly(t *testing.T) {
	s, err := NewMem()
	require.NoError(t, err)
	defer s.Close()
	createPool(t, s, "alice")

	_, err = s.db.Exec(`DELETE FROM history`)
	assert.Error(t, err)
	_, err = s.db.Exec(`UPDATE rewards SET carried = '1'`)
	// no rows to update, so the trigger doesn't fire - insert one and retry
	require.NoError(t, err)
	require.NoError(t, s.UpdatePool(context.Background(), "alice", func(tx ledger.PoolTx) error {
		return tx.AppendReward(ledger.StakingReward{ID: "r1", PoolID: "alice", DistributedAt: t0})
	}))
	_, err = s.db.Exec(`UPDATE rewards SET carried = '1'`)
	assert.Error(t, err)
	assert.NotEmpty(t, Version())
}
