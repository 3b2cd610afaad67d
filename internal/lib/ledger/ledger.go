// Package ledger is the authoritative accounting of influencer staking pools: stakes, tiers, reward accrual and
// claims.  All mutations of a pool are serialized; unrelated pools proceed in parallel.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/misc"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

type Ledger struct {
	logger     *slog.Logger
	store      Store
	classifier *tier.Classifier
	cfg        Config

	notifier    Notifier
	invalidator Invalidator
	now         func() time.Time

	// poolID -> *sync.Mutex
	locks sync.Map
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithInvalidator(i Invalidator) Option {
	return func(l *Ledger) { l.invalidator = i }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(logger *slog.Logger, store Store, classifier *tier.Classifier, cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = DefaultConflictRetries
	}
	l := &Ledger{
		logger:     logger,
		store:      store,
		classifier: classifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) Config() Config {
	return l.cfg
}

func (l *Ledger) Classifier() *tier.Classifier {
	return l.classifier
}

// PoolTier is the tier a pool's aggregate stake buys.
func (l *Ledger) PoolTier(pool StakingPool) tier.Tier {
	return l.classifier.Classify(pool.TotalStaked)
}

// tierOf returns the tier affected by a change to stake, per the configured basis.
func (l *Ledger) tierOf(pool StakingPool, stake UserStake) tier.Tier {
	if l.cfg.TierBasis == tier.BasisStake {
		return l.classifier.Classify(stake.Amount)
	}
	return l.classifier.Classify(pool.TotalStaked)
}

func (l *Ledger) poolLock(poolID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(poolID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// update serializes fn against every other update of the same pool and retries store conflicts.  fn may run more
// than once so it must only communicate through tx and variables it fully overwrites.
func (l *Ledger) update(ctx context.Context, poolID string, fn func(tx PoolTx) error) error {
	if poolID == "" {
		return fmt.Errorf("pool id: %w", ErrInvalidID)
	}
	mu := l.poolLock(poolID)
	mu.Lock()
	defer mu.Unlock()

	return misc.Retry(ctx, l.logger, "pool update", misc.RetryPolicy{
		MaxTries:  l.cfg.ConflictRetries,
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, ErrConflict) },
	}, func() error {
		return l.store.UpdatePool(ctx, poolID, fn)
	})
}

// committed runs the side effects of a successful change.  Neither can fail the change.
func (l *Ledger) committed(poolID string, evs ...events.Event) {
	if l.invalidator != nil {
		l.invalidator.InvalidatePool(poolID)
	}
	if l.notifier == nil {
		return
	}
	for _, ev := range evs {
		l.notifier.Notify(ev)
	}
}

func (l *Ledger) newHistory(pool StakingPool, staker string, action Action, amount uint64, at time.Time) HistoryRecord {
	t := l.PoolTier(pool)
	return HistoryRecord{
		ID:      newID(),
		PoolID:  pool.ID(),
		Staker:  staker,
		Action:  action,
		Amount:  amount,
		OldTier: t,
		NewTier: t,
		At:      at,
	}
}

func (l *Ledger) Pool(ctx context.Context, poolID string) (StakingPool, error) {
	return l.store.GetPool(ctx, poolID)
}

func (l *Ledger) Pools(ctx context.Context) ([]StakingPool, error) {
	return l.store.ListPools(ctx)
}

func (l *Ledger) StakeOf(ctx context.Context, poolID, staker string) (UserStake, error) {
	return l.store.GetStake(ctx, poolID, staker)
}

func (l *Ledger) Stakes(ctx context.Context, poolID string) ([]UserStake, error) {
	if _, err := l.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	return l.store.ListStakes(ctx, poolID)
}

func (l *Ledger) RewardsSince(ctx context.Context, poolID string, since time.Time) ([]StakingReward, error) {
	return l.store.RewardsSince(ctx, poolID, since)
}

func (l *Ledger) History(ctx context.Context, poolID string, limit int) ([]HistoryRecord, error) {
	if _, err := l.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	return l.store.History(ctx, poolID, limit)
}

// RefreshMetrics recomputes the aggregate gauges from the store.
func (l *Ledger) RefreshMetrics(ctx context.Context) error {
	pools, err := l.store.ListPools(ctx)
	if err != nil {
		return err
	}
	var stakers, staked float64
	for _, p := range pools {
		stakers += float64(p.StakerCount)
		staked += float64(p.TotalStaked)
	}
	promNumPools.Set(float64(len(pools)))
	promNumStakers.Set(stakers)
	promTotalStaked.Set(staked)
	return nil
}

func newID() string {
	return uuid.NewString()
}
