package apy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailgun/holster/v4/syncutil"

	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/misc"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultWorkers         = 8
)

// Source is the read side of the ledger the scheduler aggregates from.
type Source interface {
	Pools(ctx context.Context) ([]ledger.StakingPool, error)
	RewardsSince(ctx context.Context, poolID string, since time.Time) ([]ledger.StakingReward, error)
}

type Config struct {
	Window          time.Duration `yaml:"window"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Workers         int           `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{Window: DefaultWindow, RefreshInterval: DefaultRefreshInterval, Workers: DefaultWorkers}
}

func (c Config) Validate() error {
	if c.Window < day {
		return ErrInvalidWindow
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("apy refresh interval %v must be positive", c.RefreshInterval)
	}
	return nil
}

// Scheduler periodically recomputes every pool's Estimate and publishes the set as an immutable snapshot.  Readers
// never wait on a refresh.
type Scheduler struct {
	logger *slog.Logger
	src    Source
	cfg    Config
	now    func() time.Time

	snapshot atomic.Pointer[map[string]Estimate]
}

func NewScheduler(logger *slog.Logger, src Source, cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	s := &Scheduler{logger: logger, src: src, cfg: cfg, now: time.Now}
	empty := map[string]Estimate{}
	s.snapshot.Store(&empty)
	return s, nil
}

// Estimate returns the last computed estimate for poolID.
func (s *Scheduler) Estimate(poolID string) (Estimate, bool) {
	est, found := (*s.snapshot.Load())[poolID]
	return est, found
}

// Snapshot returns the last published estimates keyed by pool id.  The map must not be modified.
func (s *Scheduler) Snapshot() map[string]Estimate {
	return *s.snapshot.Load()
}

// Refresh recomputes all pools.  A pool that fails keeps its previous estimate and the first error is returned once
// every pool was attempted.
func (s *Scheduler) Refresh(ctx context.Context) error {
	start := time.Now()
	pools, err := s.src.Pools(ctx)
	if err != nil {
		return fmt.Errorf("listing pools for apy refresh: %w", err)
	}
	now := s.now()
	since := now.Add(-s.cfg.Window)

	var (
		mu      sync.Mutex
		results = make(map[string]Estimate, len(pools))
		fanOut  = syncutil.NewFanOut(s.cfg.Workers)
	)
	for _, pool := range pools {
		fanOut.Run(func(val any) error {
			pool := val.(ledger.StakingPool)
			rewards, err := s.src.RewardsSince(ctx, pool.ID(), since)
			if err != nil {
				return fmt.Errorf("rewards for pool %s: %w", pool.ID(), err)
			}
			est, err := Compute(pool, rewards, s.cfg.Window, now)
			if err != nil {
				return fmt.Errorf("apy for pool %s: %w", pool.ID(), err)
			}
			mu.Lock()
			results[pool.ID()] = est
			mu.Unlock()
			return nil
		}, pool)
	}
	errs := fanOut.Wait()

	prev := s.Snapshot()
	for _, pool := range pools {
		if _, found := results[pool.ID()]; !found {
			if old, found := prev[pool.ID()]; found {
				results[pool.ID()] = old
			}
		}
	}
	s.snapshot.Store(&results)
	publish(results)
	promRefreshSeconds.Observe(time.Since(start).Seconds())

	if len(errs) > 0 {
		promRefreshErrors.Add(float64(len(errs)))
		return errs[0]
	}
	misc.Debugf(s.logger, "refreshed apy estimates for %d pools in %v", len(results), time.Since(start))
	return nil
}

// Start refreshes immediately and then on every refresh interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.logger.Info("exiting apy scheduler")
		s.logger.Info("starting apy scheduler", "interval", s.cfg.RefreshInterval, "window", s.cfg.Window)

		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("apy refresh failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
