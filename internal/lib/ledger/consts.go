package ledger

import (
	"fmt"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

const (
	// AbsoluteMinStake is the lowest minimum stake a pool may be configured with - 0.1 token.
	AbsoluteMinStake uint64 = fixedpoint.OneToken / 10

	DefaultMinStake        = 100 * fixedpoint.OneToken
	DefaultRevenueShareBps = 2000
	MaxRevenueShareBps     = fixedpoint.BpsDenominator
	DefaultConflictRetries = 5
)

type Config struct {
	TierBasis              tier.Basis
	AbsoluteMinStake       uint64
	DefaultMinStake        uint64
	DefaultRevenueShareBps uint64
	MaxRevenueShareBps     uint64
	// ConflictRetries is how many times a store ErrConflict is retried.
	ConflictRetries int
}

func DefaultConfig() Config {
	return Config{
		TierBasis:              tier.BasisPool,
		AbsoluteMinStake:       AbsoluteMinStake,
		DefaultMinStake:        DefaultMinStake,
		DefaultRevenueShareBps: DefaultRevenueShareBps,
		MaxRevenueShareBps:     MaxRevenueShareBps,
		ConflictRetries:        DefaultConflictRetries,
	}
}

func (c Config) Validate() error {
	if err := c.TierBasis.Validate(); err != nil {
		return err
	}
	if c.MaxRevenueShareBps > fixedpoint.BpsDenominator {
		return fmt.Errorf("max revenue share %d: %w", c.MaxRevenueShareBps, fixedpoint.ErrInvalidBps)
	}
	if c.DefaultRevenueShareBps > c.MaxRevenueShareBps {
		return fmt.Errorf("default revenue share %d above max %d: %w", c.DefaultRevenueShareBps, c.MaxRevenueShareBps, ErrInvalidRevenueShare)
	}
	if c.AbsoluteMinStake == 0 {
		return fmt.Errorf("absolute minimum stake: %w", ErrInvalidAmount)
	}
	if c.DefaultMinStake < c.AbsoluteMinStake {
		return fmt.Errorf("default minimum stake %d below absolute minimum %d: %w", c.DefaultMinStake, c.AbsoluteMinStake, ErrBelowMinimumStake)
	}
	return nil
}
