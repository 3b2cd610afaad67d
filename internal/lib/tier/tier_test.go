package tier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

func tokens(n uint64) uint64 {
	v, _ := fixedpoint.Tokens(n)
	return v
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(DefaultBands())
	require.NoError(t, err)

	testCases := []struct {
		name   string
		amount uint64
		want   Tier
	}{
		{"zero", 0, Untiered},
		{"just below bronze", tokens(1_000) - 1, Untiered},
		{"bronze floor", tokens(1_000), Bronze},
		{"just below silver", tokens(10_000) - 1, Bronze},
		{"silver floor", tokens(10_000), Silver},
		{"gold floor", tokens(100_000), Gold},
		{"just below platinum", tokens(400_000) - 1, Gold},
		{"platinum floor", tokens(400_000), Platinum},
		{"max", math.MaxUint64, Platinum},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.amount))
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	c, err := NewClassifier(DefaultBands())
	require.NoError(t, err)

	prev := Untiered
	for amount := uint64(0); amount <= tokens(500_000); amount += tokens(997) {
		got := c.Classify(amount)
		assert.GreaterOrEqual(t, got, prev, "amount %d", amount)
		prev = got
	}
	// every amount maps to exactly one tier and each tier's floor maps to itself
	for tr := Bronze; tr <= Platinum; tr++ {
		assert.Equal(t, tr, c.Classify(c.Floor(tr)))
		assert.Equal(t, tr-1, c.Classify(c.Floor(tr)-1))
	}
}

func TestValidateBands(t *testing.T) {
	testCases := []struct {
		name  string
		bands []Band
	}{
		{"empty", nil},
		{"missing tier", DefaultBands()[:3]},
		{"out of order", []Band{{Silver, 1}, {Bronze, 2}, {Gold, 3}, {Platinum, 4}}},
		{"overlap", []Band{{Bronze, 10}, {Silver, 10}, {Gold, 30}, {Platinum, 40}}},
		{"decreasing", []Band{{Bronze, 10}, {Silver, 20}, {Gold, 15}, {Platinum, 40}}},
		{"zero floor", []Band{{Bronze, 0}, {Silver, 20}, {Gold, 30}, {Platinum, 40}}},
		{"overflow", []Band{{Bronze, 1}, {Silver, 2}, {Gold, 3}, {Platinum, math.MaxUint64}}},
		{"duplicate", []Band{{Bronze, 1}, {Bronze, 2}, {Gold, 3}, {Platinum, 4}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClassifier(tc.bands)
			assert.ErrorIs(t, err, ErrInvalidTiers)
		})
	}
	assert.NoError(t, ValidateBands(DefaultBands()))
}

func TestBandsRoundTrip(t *testing.T) {
	c, err := NewClassifier(DefaultBands())
	require.NoError(t, err)
	assert.Equal(t, DefaultBands(), c.Bands())
}

func TestTierText(t *testing.T) {
	for tr := Untiered; tr <= Platinum; tr++ {
		text, err := tr.MarshalText()
		require.NoError(t, err)
		var back Tier
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, tr, back)
	}
	got, err := Parse(" GOLD ")
	require.NoError(t, err)
	assert.Equal(t, Gold, got)

	_, err = Parse("diamond")
	assert.Error(t, err)
	assert.Equal(t, "tier(9)", Tier(9).String())

	assert.NoError(t, BasisPool.Validate())
	assert.Error(t, Basis("wallet").Validate())
}
