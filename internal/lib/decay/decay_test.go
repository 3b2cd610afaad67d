package decay

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

func TestCalculateDecayedAmount(t *testing.T) {
	testCases := []struct {
		name    string
		initial uint64
		rate    uint64
		days    uint64
		want    uint64
	}{
		{"one day", 1000e9, 50, 1, 995e9},
		{"zero days", 1000e9, 50, 0, 1000e9},
		{"zero rate", 1000e9, 0, 365, 1000e9},
		{"full rate", 1000e9, 10000, 1, 0},
		{"zero amount", 0, 50, 10, 0},
		{"floors each day", 3, 5000, 1, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateDecayedAmount(tc.initial, tc.rate, tc.days)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCalculateDecayedAmountCompounds(t *testing.T) {
	got, err := CalculateDecayedAmount(1000e9, 50, 7)
	require.NoError(t, err)
	assert.InEpsilon(t, 965.6e9, float64(got), 0.0001)

	// compounding must match applying one day at a time
	step := uint64(1000e9)
	for i := 0; i < 7; i++ {
		step, err = CalculateDecayedAmount(step, 50, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, step, got)
}

func TestCalculateDecayedAmountMaxInput(t *testing.T) {
	got, err := CalculateDecayedAmount(math.MaxUint64, 50, 30)
	require.NoError(t, err)
	assert.Less(t, got, uint64(math.MaxUint64))

	got, err = CalculateDecayedAmount(math.MaxUint64, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	_, err = CalculateDecayedAmount(1, 10001, 1)
	assert.ErrorIs(t, err, fixedpoint.ErrInvalidBps)
}

func TestCalculateTreasuryDistribution(t *testing.T) {
	floor, ops, err := CalculateTreasuryDistribution(100e9, 9000)
	require.NoError(t, err)
	assert.Equal(t, uint64(90e9), floor)
	assert.Equal(t, uint64(10e9), ops)

	for _, amount := range []uint64{0, 1, 3, 999_999_999, 4_999_999_999_999, math.MaxUint64} {
		for _, split := range []uint64{0, 1, 3333, 5000, 9000, 9999, 10000} {
			floor, ops, err := CalculateTreasuryDistribution(amount, split)
			require.NoError(t, err)
			sum, err := fixedpoint.Add(floor, ops)
			require.NoError(t, err)
			assert.Equal(t, amount, sum, "amount %d split %d", amount, split)
		}
	}

	_, _, err = CalculateTreasuryDistribution(1, 10001)
	assert.ErrorIs(t, err, fixedpoint.ErrInvalidBps)
}

func newTestState(t *testing.T, start time.Time) State {
	supply, err := fixedpoint.Tokens(DefaultTotalSupplyTokens)
	require.NoError(t, err)
	state, err := NewState(supply, DefaultDailyRateBps, DefaultTreasurySplitBps, start)
	require.NoError(t, err)
	return state
}

func TestApply(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calc, err := NewCalculator(DefaultInterval)
	require.NoError(t, err)
	state := newTestState(t, start)

	_, _, err = calc.Apply(state, start.Add(23*time.Hour))
	assert.ErrorIs(t, err, ErrDecayTooSoon)

	next, app, err := calc.Apply(state, start.Add(50*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), app.Days)
	// partial interval carries over
	assert.Equal(t, start.Add(48*time.Hour), next.LastDecayAppliedAt)
	assert.Equal(t, state.TotalSupply-next.TotalSupply, app.DecayAmount)
	assert.Equal(t, app.DecayAmount, next.FloorTreasuryBalance+next.OpsTreasuryBalance)
	assert.Equal(t, app.DecayAmount, next.TotalDecayed)

	expected, err := CalculateDecayedAmount(state.TotalSupply, DefaultDailyRateBps, 2)
	require.NoError(t, err)
	assert.Equal(t, expected, next.TotalSupply)

	// original state untouched
	assert.Zero(t, state.TotalDecayed)

	paused := next
	paused.Paused = true
	_, _, err = calc.Apply(paused, start.Add(500*time.Hour))
	assert.ErrorIs(t, err, ErrDecayPaused)

	_, err = NewCalculator(0)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = NewState(1, 10001, 0, start)
	assert.ErrorIs(t, err, fixedpoint.ErrInvalidBps)
}

func TestApplyConservationOverManyRuns(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calc, err := NewCalculator(DefaultInterval)
	require.NoError(t, err)
	initial := newTestState(t, start)
	state := initial

	now := start
	for i := 0; i < 90; i++ {
		now = now.Add(DefaultInterval + time.Duration(i)*time.Minute)
		state, _, err = calc.Apply(state, now)
		require.NoError(t, err)
	}
	assert.Equal(t, initial.TotalSupply, state.TotalSupply+state.FloorTreasuryBalance+state.OpsTreasuryBalance)
	assert.Equal(t, initial.TotalSupply-state.TotalSupply, state.TotalDecayed)
}

type memStateStore struct {
	sync.Mutex
	state *State
}

func (m *memStateStore) LoadState(_ context.Context) (State, error) {
	m.Lock()
	defer m.Unlock()
	if m.state == nil {
		return State{}, ErrStateNotFound
	}
	return *m.state, nil
}

func (m *memStateStore) InitState(_ context.Context, state State) error {
	m.Lock()
	defer m.Unlock()
	if m.state != nil {
		return ErrStateExists
	}
	m.state = &state
	return nil
}

func (m *memStateStore) SaveState(_ context.Context, prev, next State) error {
	m.Lock()
	defer m.Unlock()
	if m.state == nil || !m.state.LastDecayAppliedAt.Equal(prev.LastDecayAppliedAt) || m.state.Paused != prev.Paused {
		return ErrStateConflict
	}
	m.state = &next
	return nil
}

type recordingNotifier struct {
	apps []Application
}

func (r *recordingNotifier) DecayApplied(app Application) {
	r.apps = append(r.apps, app)
}

func TestJob(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStateStore{}
	ctx := context.Background()
	require.NoError(t, store.InitState(ctx, newTestState(t, start)))
	calc, err := NewCalculator(DefaultInterval)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	job := NewJob(slog.Default(), store, calc, notifier)
	job.now = func() time.Time { return start.Add(25 * time.Hour) }

	app, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), app.Days)
	require.Len(t, notifier.apps, 1)

	// same 'now' again - nothing due
	_, err = job.Run(ctx)
	assert.ErrorIs(t, err, ErrDecayTooSoon)
	assert.True(t, IsIdle(err))

	require.NoError(t, job.SetPaused(ctx, true))
	job.now = func() time.Time { return start.Add(100 * time.Hour) }
	_, err = job.Run(ctx)
	assert.ErrorIs(t, err, ErrDecayPaused)

	require.NoError(t, job.SetPaused(ctx, false))
	app, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), app.Days)

	state, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.Add(96*time.Hour), state.LastDecayAppliedAt)
	assert.Len(t, notifier.apps, 2)
}
