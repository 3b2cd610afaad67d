package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gary322/twist-sub006/internal/lib/apy"
	"github.com/gary322/twist-sub006/internal/lib/config"
	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/misc"
)

const ledgerMetricsInterval = time.Minute

// Daemon runs the background work of the engine: applying supply decay on interval boundaries, refreshing yield
// estimates, delivering events and serving metrics.  It is initialized from the App components set up at startup.
type Daemon struct {
	logger     *slog.Logger
	cfg        config.Config
	ledger     *ledger.Ledger
	dispatcher *events.Dispatcher
	apy        *apy.Scheduler
	decayJob   *decay.Job
	decayCalc  *decay.Calculator
}

func newDaemon() *Daemon {
	return &Daemon{
		logger:     App.logger,
		cfg:        App.cfg,
		ledger:     App.ledger,
		dispatcher: App.dispatcher,
		apy:        App.apy,
		decayJob:   App.decayJob,
		decayCalc:  App.decayCalc,
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting tokenomics daemon")

	d.dispatcher.Start(ctx, wg)
	d.apy.Start(ctx, wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.DecayWatcher(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.LedgerMetrics(ctx)
	}()

	if d.cfg.Daemon.MetricsListen != "" {
		d.serveMetrics(ctx, wg)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer d.logger.Info("exiting daemon start function")
		<-ctx.Done()
	}()
}

// DecayWatcher applies decay once at startup (catching up on missed intervals) and then at every interval boundary.
func (d *Daemon) DecayWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting DecayWatcher")
	d.logger.Info("Starting DecayWatcher", "interval", d.decayCalc.Interval())

	epochMinutes := int(d.decayCalc.Interval() / time.Minute)
	if epochMinutes < 1 {
		epochMinutes = 1
	}
	d.applyDecay(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(durationToNextEpoch(time.Now(), epochMinutes)):
			d.applyDecay(ctx)
		}
	}
}

func (d *Daemon) applyDecay(ctx context.Context) {
	err := misc.Retry(ctx, d.logger, "decay run", misc.RetryPolicy{
		MaxTries:  d.cfg.Daemon.DecayRetries,
		BaseDelay: 5 * time.Second,
		MaxDelay:  time.Minute,
		Retryable: func(err error) bool {
			return !decay.IsIdle(err) && !errors.Is(err, decay.ErrStateNotFound) &&
				!errors.Is(err, decay.ErrStateConflict) && !errors.Is(err, decay.ErrConservation)
		},
	}, func() error {
		_, err := d.decayJob.Run(ctx)
		return err
	})
	switch {
	case err == nil:
	case decay.IsIdle(err):
		misc.Debugf(d.logger, "no decay due: %v", err)
	case errors.Is(err, decay.ErrStateConflict):
		misc.Infof(d.logger, "decay applied concurrently by another instance")
	case errors.Is(err, decay.ErrStateNotFound):
		d.logger.Warn("decay state not initialized - run 'decay init'")
	default:
		misc.Errorf(d.logger, "decay run failed: %v", err)
	}
}

// LedgerMetrics keeps the aggregate ledger gauges current.
func (d *Daemon) LedgerMetrics(ctx context.Context) {
	for {
		if err := d.ledger.RefreshMetrics(ctx); err != nil {
			d.logger.Warn("ledger metrics refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(ledgerMetricsInterval):
		}
	}
}

func (d *Daemon) serveMetrics(ctx context.Context, wg *sync.WaitGroup) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: d.cfg.Daemon.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		misc.Infof(d.logger, "serving metrics on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			misc.Errorf(d.logger, "metrics server: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// durationToNextEpoch returns how long until the next wall-clock multiple of epochMinutes.  A time exactly on a
// boundary waits a full epoch.
func durationToNextEpoch(curTime time.Time, epochMinutes int) time.Duration {
	epoch := time.Duration(epochMinutes) * time.Minute
	return curTime.Truncate(epoch).Add(epoch).Sub(curTime)
}
