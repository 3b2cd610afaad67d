// Package store persists ledger and decay state.  MemoryStore keeps everything in process; SQLiteStore is durable.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
)

type poolRecord struct {
	pool      ledger.StakingPool
	stakes    map[string]ledger.UserStake
	rewards   []ledger.StakingReward
	rewardIdx map[string]int
	history   []ledger.HistoryRecord
	receipts  map[string]ledger.ClaimReceipt
}

// MemoryStore is an in-process ledger.Store and decay.StateStore.
type MemoryStore struct {
	sync.RWMutex
	pools map[string]*poolRecord
	decay *decay.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: map[string]*poolRecord{}}
}

func (s *MemoryStore) CreatePool(_ context.Context, pool ledger.StakingPool, rec ledger.HistoryRecord) error {
	s.Lock()
	defer s.Unlock()
	if _, found := s.pools[pool.ID()]; found {
		return ledger.ErrPoolExists
	}
	pool.Version = 1
	s.pools[pool.ID()] = &poolRecord{
		pool:      pool,
		stakes:    map[string]ledger.UserStake{},
		rewardIdx: map[string]int{},
		history:   []ledger.HistoryRecord{rec},
		receipts:  map[string]ledger.ClaimReceipt{},
	}
	return nil
}

func (s *MemoryStore) record(poolID string) (*poolRecord, error) {
	rec, found := s.pools[poolID]
	if !found {
		return nil, ledger.ErrPoolNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetPool(_ context.Context, poolID string) (ledger.StakingPool, error) {
	s.RLock()
	defer s.RUnlock()
	rec, err := s.record(poolID)
	if err != nil {
		return ledger.StakingPool{}, err
	}
	return rec.pool, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]ledger.StakingPool, error) {
	s.RLock()
	defer s.RUnlock()
	pools := make([]ledger.StakingPool, 0, len(s.pools))
	for _, rec := range s.pools {
		pools = append(pools, rec.pool)
	}
	slices.SortFunc(pools, func(a, b ledger.StakingPool) int { return strings.Compare(a.ID(), b.ID()) })
	return pools, nil
}

func (s *MemoryStore) GetStake(_ context.Context, poolID, staker string) (ledger.UserStake, error) {
	s.RLock()
	defer s.RUnlock()
	rec, err := s.record(poolID)
	if err != nil {
		return ledger.UserStake{}, err
	}
	stake, found := rec.stakes[staker]
	if !found {
		return ledger.UserStake{}, ledger.ErrStakeNotFound
	}
	return stake, nil
}

func (s *MemoryStore) ListStakes(_ context.Context, poolID string) ([]ledger.UserStake, error) {
	s.RLock()
	defer s.RUnlock()
	rec, err := s.record(poolID)
	if err != nil {
		return nil, err
	}
	return sortedStakes(rec.stakes, false), nil
}

func sortedStakes(stakes map[string]ledger.UserStake, activeOnly bool) []ledger.UserStake {
	out := make([]ledger.UserStake, 0, len(stakes))
	for _, st := range stakes {
		if activeOnly && !st.Active() {
			continue
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b ledger.UserStake) int { return strings.Compare(a.Staker, b.Staker) })
	return out
}

func (s *MemoryStore) RewardsSince(_ context.Context, poolID string, since time.Time) ([]ledger.StakingReward, error) {
	s.RLock()
	defer s.RUnlock()
	rec, err := s.record(poolID)
	if err != nil {
		return nil, err
	}
	var out []ledger.StakingReward
	for _, r := range rec.rewards {
		if !r.DistributedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, poolID string, limit int) ([]ledger.HistoryRecord, error) {
	s.RLock()
	defer s.RUnlock()
	rec, err := s.record(poolID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.HistoryRecord, 0, len(rec.history))
	for i := len(rec.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rec.history[i])
	}
	return out, nil
}

func (s *MemoryStore) UpdatePool(_ context.Context, poolID string, fn func(tx ledger.PoolTx) error) error {
	s.RLock()
	rec, err := s.record(poolID)
	var pool ledger.StakingPool
	if err == nil {
		pool = rec.pool
	}
	s.RUnlock()
	if err != nil {
		return err
	}

	tx := &memTx{
		s:            s,
		rec:          rec,
		pool:         pool,
		startVersion: pool.Version,
		stakes:       map[string]ledger.UserStake{},
		receipts:     map[string]ledger.ClaimReceipt{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// memTx stages writes until commit.
type memTx struct {
	s            *MemoryStore
	rec          *poolRecord
	startVersion uint64

	pool      ledger.StakingPool
	poolDirty bool
	stakes    map[string]ledger.UserStake
	rewards   []ledger.StakingReward
	history   []ledger.HistoryRecord
	receipts  map[string]ledger.ClaimReceipt
}

func (tx *memTx) Pool() ledger.StakingPool {
	return tx.pool
}

func (tx *memTx) Stake(staker string) (ledger.UserStake, bool, error) {
	if st, found := tx.stakes[staker]; found {
		return st, true, nil
	}
	tx.s.RLock()
	defer tx.s.RUnlock()
	st, found := tx.rec.stakes[staker]
	return st, found, nil
}

func (tx *memTx) ActiveStakes() ([]ledger.UserStake, error) {
	tx.s.RLock()
	merged := make(map[string]ledger.UserStake, len(tx.rec.stakes)+len(tx.stakes))
	for k, v := range tx.rec.stakes {
		merged[k] = v
	}
	tx.s.RUnlock()
	for k, v := range tx.stakes {
		merged[k] = v
	}
	return sortedStakes(merged, true), nil
}

func (tx *memTx) Reward(id string) (ledger.StakingReward, bool, error) {
	for _, r := range tx.rewards {
		if r.ID == id {
			return r, true, nil
		}
	}
	tx.s.RLock()
	defer tx.s.RUnlock()
	if idx, found := tx.rec.rewardIdx[id]; found {
		return tx.rec.rewards[idx], true, nil
	}
	return ledger.StakingReward{}, false, nil
}

func (tx *memTx) ClaimReceipt(key string) (ledger.ClaimReceipt, bool, error) {
	if r, found := tx.receipts[key]; found {
		return r, true, nil
	}
	tx.s.RLock()
	defer tx.s.RUnlock()
	r, found := tx.rec.receipts[key]
	return r, found, nil
}

func (tx *memTx) PutPool(pool ledger.StakingPool) error {
	pool.Version = tx.startVersion
	tx.pool = pool
	tx.poolDirty = true
	return nil
}

func (tx *memTx) PutStake(stake ledger.UserStake) error {
	tx.stakes[stake.Staker] = stake
	return nil
}

func (tx *memTx) AppendReward(reward ledger.StakingReward) error {
	tx.rewards = append(tx.rewards, reward)
	return nil
}

func (tx *memTx) AppendHistory(rec ledger.HistoryRecord) error {
	tx.history = append(tx.history, rec)
	return nil
}

func (tx *memTx) PutClaimReceipt(receipt ledger.ClaimReceipt) error {
	tx.receipts[receipt.Key] = receipt
	return nil
}

func (tx *memTx) dirty() bool {
	return tx.poolDirty || len(tx.stakes) > 0 || len(tx.rewards) > 0 || len(tx.history) > 0 || len(tx.receipts) > 0
}

func (tx *memTx) commit() error {
	if !tx.dirty() {
		return nil
	}
	tx.s.Lock()
	defer tx.s.Unlock()
	rec := tx.rec
	if rec.pool.Version != tx.startVersion {
		return ledger.ErrConflict
	}
	if tx.poolDirty {
		rec.pool = tx.pool
	}
	rec.pool.Version = tx.startVersion + 1
	for k, v := range tx.stakes {
		rec.stakes[k] = v
	}
	for _, r := range tx.rewards {
		rec.rewardIdx[r.ID] = len(rec.rewards)
		rec.rewards = append(rec.rewards, r)
	}
	rec.history = append(rec.history, tx.history...)
	for k, v := range tx.receipts {
		rec.receipts[k] = v
	}
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context) (decay.State, error) {
	s.RLock()
	defer s.RUnlock()
	if s.decay == nil {
		return decay.State{}, decay.ErrStateNotFound
	}
	return *s.decay, nil
}

func (s *MemoryStore) InitState(_ context.Context, state decay.State) error {
	s.Lock()
	defer s.Unlock()
	if s.decay != nil {
		return decay.ErrStateExists
	}
	s.decay = &state
	return nil
}

func (s *MemoryStore) SaveState(_ context.Context, prev, next decay.State) error {
	s.Lock()
	defer s.Unlock()
	if s.decay == nil {
		return decay.ErrStateNotFound
	}
	if !sameDecayKey(*s.decay, prev) {
		return decay.ErrStateConflict
	}
	s.decay = &next
	return nil
}

func sameDecayKey(a, b decay.State) bool {
	return a.LastDecayAppliedAt.Equal(b.LastDecayAppliedAt) && a.Paused == b.Paused && a.TotalSupply == b.TotalSupply
}
