package ledger

import (
	"errors"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

var (
	ErrArithmeticOverflow  = fixedpoint.ErrArithmeticOverflow
	ErrInsufficientBalance = fixedpoint.ErrInsufficientBalance

	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolExists          = errors.New("pool already exists")
	ErrPoolInactive        = errors.New("pool is not active")
	ErrBelowMinimumStake   = errors.New("amount is below the pool minimum stake")
	ErrInsufficientStake   = errors.New("unstake amount exceeds staked balance")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidID           = errors.New("id must not be empty")
	ErrInvalidRevenueShare = errors.New("revenue share exceeds the allowed maximum")
	ErrInvalidClaimKey     = errors.New("claim key was already used by a different staker")
	ErrStakeNotFound       = errors.New("stake not found")
	// ErrConflict is returned by a Store when a pool changed underneath a transaction.
	ErrConflict = errors.New("pool was modified concurrently")
	// ErrInvariant means stored state failed a consistency check - this is never expected.
	ErrInvariant = errors.New("ledger invariant violated")
)
