package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/gary322/twist-sub006/internal/lib/misc"
)

func GetDaemonCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the engine background jobs (decay, yield estimates, events, metrics) as a daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "metrics",
				Usage:   "Listen address of the prometheus metrics endpoint, ie: :9100.  Overrides the configuration",
				Sources: cli.EnvVars("TOKENOMICS_METRICS_LISTEN"),
			},
		},
		Action: runAsDaemon,
	}
}

func runAsDaemon(_ context.Context, cmd *cli.Command) error {
	var wg sync.WaitGroup

	if cmd.IsSet("metrics") {
		App.cfg.Daemon.MetricsListen = cmd.String("metrics")
	}
	if App.cfg.Database.Path == "" {
		App.logger.Warn("running daemon against an in-memory ledger - nothing will persist")
	}

	// Create channel used by the signal handler to notify the main goroutine when to stop.
	errc := make(chan error)

	// Setup interrupt handler so SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(context.Background())

	newDaemon().start(ctx, &wg)

	misc.Infof(App.logger, "exiting (%v)", <-errc) // wait for termination signal

	// Send cancellation signal to the goroutines.
	cancel()
	misc.Infof(App.logger, "waiting on background tasks..")
	wg.Wait()

	misc.Infof(App.logger, "exited")
	return nil
}
