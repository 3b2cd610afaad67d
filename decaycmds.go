package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
)

func GetDecayCmdOpts() *cli.Command {
	return &cli.Command{
		Name:  "decay",
		Usage: "Inspect and operate the daily supply decay",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize the decay state from the configured supply and rates.  Only done once",
				Action: DecayInit,
			},
			{
				Name:   "status",
				Usage:  "Show supply, treasury balances and when decay is next due",
				Action: DecayStatus,
			},
			{
				Name:   "preview",
				Usage:  "Show what applying decay would do, without changing anything",
				Action: DecayPreview,
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "days", Value: 1, Usage: "Number of days of decay to preview"},
				},
			},
			{
				Name:   "apply",
				Usage:  "Apply any due decay now.  Normally happens automatically as part of daemon operations",
				Action: DecayApply,
			},
			{
				Name:   "pause",
				Usage:  "Stop decay from being applied until resumed",
				Action: func(ctx context.Context, cmd *cli.Command) error { return setDecayPaused(ctx, true) },
			},
			{
				Name:   "resume",
				Usage:  "Resume a paused decay.  Intervals missed while paused are applied on the next run",
				Action: func(ctx context.Context, cmd *cli.Command) error { return setDecayPaused(ctx, false) },
			},
		},
	}
}

func DecayInit(ctx context.Context, cmd *cli.Command) error {
	dc := App.cfg.Decay
	start := time.Now().UTC().Truncate(App.decayCalc.Interval())
	state, err := decay.NewState(uint64(dc.InitialSupply), dc.DailyRateBps, dc.TreasurySplitBps, start)
	if err != nil {
		return err
	}
	if err := App.store.InitState(ctx, state); err != nil {
		if errors.Is(err, decay.ErrStateExists) {
			return cli.Exit("decay state is already initialized", 1)
		}
		return err
	}
	fmt.Printf("decay initialized: supply %s, %d bps/day, %d bps to floor treasury, anchored at %s\n",
		fixedpoint.Format(state.TotalSupply), state.DailyDecayRateBps, state.TreasurySplitBps,
		start.Format(time.RFC3339))
	return nil
}

func DecayStatus(ctx context.Context, cmd *cli.Command) error {
	state, err := App.store.LoadState(ctx)
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total Supply:\t%s\n", fixedpoint.Format(state.TotalSupply))
	fmt.Fprintf(tw, "Total Decayed:\t%s\n", fixedpoint.Format(state.TotalDecayed))
	fmt.Fprintf(tw, "Floor Treasury:\t%s\n", fixedpoint.Format(state.FloorTreasuryBalance))
	fmt.Fprintf(tw, "Ops Treasury:\t%s\n", fixedpoint.Format(state.OpsTreasuryBalance))
	fmt.Fprintf(tw, "Daily Rate:\t%d bps\n", state.DailyDecayRateBps)
	fmt.Fprintf(tw, "Treasury Split:\t%d bps floor\n", state.TreasurySplitBps)
	fmt.Fprintf(tw, "Last Applied:\t%s\n", state.LastDecayAppliedAt.Format(time.RFC3339))
	if state.Paused {
		fmt.Fprintf(tw, "Next Due:\tpaused\n")
	} else {
		fmt.Fprintf(tw, "Next Due:\t%s (%d interval(s) outstanding)\n",
			App.decayCalc.NextDue(state).Format(time.RFC3339),
			App.decayCalc.ElapsedIntervals(state.LastDecayAppliedAt, time.Now()))
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func DecayPreview(ctx context.Context, cmd *cli.Command) error {
	supply, rate, split := uint64(App.cfg.Decay.InitialSupply), App.cfg.Decay.DailyRateBps, App.cfg.Decay.TreasurySplitBps
	if state, err := App.store.LoadState(ctx); err == nil {
		supply, rate, split = state.TotalSupply, state.DailyDecayRateBps, state.TreasurySplitBps
	} else if !errors.Is(err, decay.ErrStateNotFound) {
		return err
	}
	app, err := decay.Preview(supply, rate, split, cmd.Uint("days"))
	if err != nil {
		return err
	}
	printApplication(app)
	return nil
}

func DecayApply(ctx context.Context, cmd *cli.Command) error {
	app, err := App.decayJob.Run(ctx)
	if decay.IsIdle(err) {
		fmt.Println(err)
		return nil
	}
	if err != nil {
		return err
	}
	printApplication(app)
	return nil
}

func setDecayPaused(ctx context.Context, paused bool) error {
	if err := App.decayJob.SetPaused(ctx, paused); err != nil {
		return err
	}
	fmt.Printf("decay paused:%v\n", paused)
	return nil
}

func printApplication(app decay.Application) {
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Days:\t%d\n", app.Days)
	fmt.Fprintf(tw, "Supply:\t%s -> %s\n", fixedpoint.Format(app.SupplyBefore), fixedpoint.Format(app.SupplyAfter))
	fmt.Fprintf(tw, "Decayed:\t%s\n", fixedpoint.Format(app.DecayAmount))
	fmt.Fprintf(tw, "Floor Treasury:\t+%s\n", fixedpoint.Format(app.FloorAmount))
	fmt.Fprintf(tw, "Ops Treasury:\t+%s\n", fixedpoint.Format(app.OpsAmount))
	tw.Flush()
	fmt.Print(out.String())
}
