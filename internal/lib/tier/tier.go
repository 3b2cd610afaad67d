// Package tier classifies staked amounts into the discrete staking tiers.
package tier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

type Tier uint8

const (
	Untiered Tier = iota
	Bronze
	Silver
	Gold
	Platinum
)

var ErrInvalidTiers = errors.New("invalid tier thresholds")

var tierNames = [...]string{"untiered", "bronze", "silver", "gold", "platinum"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

func (t Tier) MarshalText() ([]byte, error) {
	if int(t) >= len(tierNames) {
		return nil, fmt.Errorf("unknown tier %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse accepts a tier name, case-insensitive.
func Parse(name string) (Tier, error) {
	for i, n := range tierNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Tier(i), nil
		}
	}
	return Untiered, fmt.Errorf("unknown tier name:%q", name)
}

// Band is the inclusive lower bound, in whole tokens, of a tier.  A tier extends up to (but not including) the
// next band's floor - the highest band is unbounded.
type Band struct {
	Tier      Tier   `yaml:"tier" json:"tier"`
	MinTokens uint64 `yaml:"min_tokens" json:"minTokens"`
}

// DefaultBands are the production thresholds.
func DefaultBands() []Band {
	return []Band{
		{Tier: Bronze, MinTokens: 1_000},
		{Tier: Silver, MinTokens: 10_000},
		{Tier: Gold, MinTokens: 100_000},
		{Tier: Platinum, MinTokens: 400_000},
	}
}

// ValidateBands checks that every tier above Untiered appears exactly once, in tier order, with strictly
// increasing floors.  A lower-bound table meeting that is contiguous with no overlap.
func ValidateBands(bands []Band) error {
	if len(bands) != int(Platinum) {
		return fmt.Errorf("%w: expected %d bands, got %d", ErrInvalidTiers, Platinum, len(bands))
	}
	var prev uint64
	for i, b := range bands {
		if b.Tier != Tier(i+1) {
			return fmt.Errorf("%w: band %d is %s, expected %s", ErrInvalidTiers, i, b.Tier, Tier(i+1))
		}
		if b.MinTokens == 0 {
			return fmt.Errorf("%w: %s floor must be positive", ErrInvalidTiers, b.Tier)
		}
		if i > 0 && b.MinTokens <= prev {
			return fmt.Errorf("%w: %s floor %d must exceed %s floor %d", ErrInvalidTiers, b.Tier, b.MinTokens, bands[i-1].Tier, prev)
		}
		if _, err := fixedpoint.Tokens(b.MinTokens); err != nil {
			return fmt.Errorf("%w: %s floor: %w", ErrInvalidTiers, b.Tier, err)
		}
		prev = b.MinTokens
	}
	return nil
}

// Classifier maps a base-unit amount to its Tier.  It is immutable once built and safe for concurrent use.
type Classifier struct {
	// floors[i] is the base-unit floor for Tier(i+1)
	floors [Platinum]uint64
}

func NewClassifier(bands []Band) (*Classifier, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	c := &Classifier{}
	for i, b := range bands {
		c.floors[i], _ = fixedpoint.Tokens(b.MinTokens)
	}
	return c, nil
}

func (c *Classifier) Classify(amount uint64) Tier {
	t := Untiered
	for i, floor := range c.floors {
		if amount < floor {
			break
		}
		t = Tier(i + 1)
	}
	return t
}

// Floor returns the base-unit floor of a tier (0 for Untiered).
func (c *Classifier) Floor(t Tier) uint64 {
	if t == Untiered || t > Platinum {
		return 0
	}
	return c.floors[t-1]
}

// Bands returns the thresholds as whole-token bands.
func (c *Classifier) Bands() []Band {
	bands := make([]Band, 0, len(c.floors))
	for i, floor := range c.floors {
		bands = append(bands, Band{Tier: Tier(i + 1), MinTokens: fixedpoint.WholeTokens(floor)})
	}
	return bands
}

// Basis selects which balance a tier is computed from.
type Basis string

const (
	BasisPool  Basis = "pool"
	BasisStake Basis = "stake"
)

func (b Basis) Validate() error {
	switch b {
	case BasisPool, BasisStake:
		return nil
	}
	return fmt.Errorf("unknown tier basis:%q", string(b))
}
