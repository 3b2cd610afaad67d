package decay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gary322/twist-sub006/internal/lib/misc"
)

// StateStore persists the decay State.  SaveState must only succeed if the stored state still has prev's
// LastDecayAppliedAt, so two runners can never apply the same interval twice.
type StateStore interface {
	LoadState(ctx context.Context) (State, error)
	InitState(ctx context.Context, state State) error
	SaveState(ctx context.Context, prev, next State) error
}

// Notifier receives applied decay steps.
type Notifier interface {
	DecayApplied(app Application)
}

// Job loads, applies and persists decay.
type Job struct {
	logger   *slog.Logger
	store    StateStore
	calc     *Calculator
	notifier Notifier
	now      func() time.Time
}

func NewJob(logger *slog.Logger, store StateStore, calc *Calculator, notifier Notifier) *Job {
	return &Job{
		logger:   logger,
		store:    store,
		calc:     calc,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run applies any elapsed intervals.  It returns the application performed, or ErrDecayTooSoon/ErrDecayPaused if
// nothing was due.
func (j *Job) Run(ctx context.Context) (Application, error) {
	prev, err := j.store.LoadState(ctx)
	if err != nil {
		return Application{}, err
	}
	promPaused.Set(boolToFloat(prev.Paused))
	next, app, err := j.calc.Apply(prev, j.now())
	if err != nil {
		return Application{}, err
	}
	if err := j.store.SaveState(ctx, prev, next); err != nil {
		return Application{}, err
	}
	promTotalSupply.Set(float64(next.TotalSupply))
	promTotalDecayed.Set(float64(next.TotalDecayed))
	promDecayRuns.Inc()
	misc.Infof(j.logger, "applied %d day(s) of decay: decayed:%d floor:%d ops:%d supply:%d", app.Days,
		app.DecayAmount, app.FloorAmount, app.OpsAmount, next.TotalSupply)
	if j.notifier != nil {
		j.notifier.DecayApplied(app)
	}
	return app, nil
}

// SetPaused toggles the emergency pause.
func (j *Job) SetPaused(ctx context.Context, paused bool) error {
	prev, err := j.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if prev.Paused == paused {
		return nil
	}
	next := prev
	next.Paused = paused
	if err := j.store.SaveState(ctx, prev, next); err != nil {
		return err
	}
	promPaused.Set(boolToFloat(paused))
	misc.Infof(j.logger, "decay paused:%v", paused)
	return nil
}

// IsIdle reports whether err just means there was nothing to do.
func IsIdle(err error) bool {
	return errors.Is(err, ErrDecayTooSoon) || errors.Is(err, ErrDecayPaused)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
