// Package events delivers ledger notifications (tier changes, reward distributions, claims, decay runs) to handlers
// asynchronously.  Delivery is at-least-once; handlers must be idempotent on Event.ID.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gary322/twist-sub006/internal/lib/tier"
)

type Kind string

const (
	KindTierChanged       Kind = "tier_changed"
	KindRewardDistributed Kind = "reward_distributed"
	KindRewardClaimed     Kind = "reward_claimed"
	KindDecayApplied      Kind = "decay_applied"
)

type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	PoolID  string    `json:"poolId,omitempty"`
	Staker  string    `json:"staker,omitempty"`
	Amount  uint64    `json:"amount,omitempty"`
	OldTier tier.Tier `json:"oldTier,omitempty"`
	NewTier tier.Tier `json:"newTier,omitempty"`
	At      time.Time `json:"at"`
}

// New returns an event of the given kind with a fresh id.
func New(kind Kind, poolID string, at time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		PoolID: poolID,
		At:     at.UTC(),
	}
}

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
