package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/antihax/optional"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/searchcache"
)

func GetPoolCmdOpts() *cli.Command {
	poolFlag := &cli.StringFlag{
		Name:     "pool",
		Usage:    "Pool id (the influencer id the pool was created for)",
		Required: true,
	}
	stakerFlag := &cli.StringFlag{
		Name:     "staker",
		Usage:    "Staker account id",
		Required: true,
	}
	amountFlag := &cli.StringFlag{
		Name:     "amount",
		Usage:    "Token amount, decimal (ie: 1000 or 0.25)",
		Required: true,
	}
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Create, inspect and operate influencer staking pools",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Aliases:   []string{"c"},
				Usage:     "Create a staking pool for an influencer.  Prompts for missing values when run interactively",
				ArgsUsage: "influencer-id",
				Action:    PoolCreate,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "revenue-share",
						Usage: "Share of each reward paid to stakers, in basis points",
					},
					&cli.StringFlag{
						Name:  "min-stake",
						Usage: "Minimum stake in tokens",
					},
				},
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List pools, sorted and filtered",
				Action:  PoolsList,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sort",
						Usage: "Sort field: totalStaked, stakerCount, apy, createdAt, totalRewardsDistributed, revenueShareBps",
					},
					&cli.BoolFlag{Name: "asc", Usage: "Sort ascending"},
					&cli.BoolFlag{Name: "active", Usage: "Only active (or with --active=false only inactive) pools"},
					&cli.StringFlag{Name: "min-staked", Usage: "Minimum total staked, in tokens"},
					&cli.StringFlag{Name: "tier", Usage: "Pool tier: untiered, bronze, silver, gold, platinum"},
					&cli.StringFlag{Name: "influencer", Usage: "Only the pool for this influencer"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "page-size", Value: searchcache.DefaultPageSize},
				},
			},
			{
				Name:   "info",
				Usage:  "Show a single pool",
				Action: PoolInfo,
				Flags:  []cli.Flag{poolFlag},
			},
			{
				Name:   "ledger",
				Usage:  "List every stake in a pool",
				Action: PoolLedger,
				Flags:  []cli.Flag{poolFlag},
			},
			{
				Name:   "stake",
				Usage:  "Add stake to a pool",
				Action: StakeAdd,
				Flags:  []cli.Flag{poolFlag, stakerFlag, amountFlag},
			},
			{
				Name:   "unstake",
				Usage:  "Withdraw stake from a pool",
				Action: StakeRemove,
				Flags:  []cli.Flag{poolFlag, stakerFlag, amountFlag},
			},
			{
				Name:   "accrue",
				Usage:  "Record influencer earnings and distribute the stakers' share",
				Action: PoolAccrue,
				Flags: []cli.Flag{poolFlag, amountFlag,
					&cli.StringFlag{
						Name:  "id",
						Usage: "Reward id.  Accruing the same id twice is a no-op.  Defaults to a new unique id",
					},
				},
			},
			{
				Name:   "claim",
				Usage:  "Claim a staker's pending rewards",
				Action: PoolClaim,
				Flags: []cli.Flag{poolFlag, stakerFlag,
					&cli.StringFlag{
						Name:  "key",
						Usage: "Idempotency key.  Defaults to one derived from the stake's reward sequence",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "Show the history log of a pool, newest first",
				Action: PoolHistory,
				Flags: []cli.Flag{poolFlag,
					&cli.IntFlag{Name: "limit", Value: 50},
				},
			},
			{
				Name:   "activate",
				Usage:  "Re-open a pool to new stakes",
				Action: func(ctx context.Context, cmd *cli.Command) error { return setPoolActive(ctx, cmd, true) },
				Flags:  []cli.Flag{poolFlag},
			},
			{
				Name:   "deactivate",
				Usage:  "Close a pool to new stakes.  Unstaking and claims still work",
				Action: func(ctx context.Context, cmd *cli.Command) error { return setPoolActive(ctx, cmd, false) },
				Flags:  []cli.Flag{poolFlag},
			},
			{
				Name:   "revenue-share",
				Usage:  "Change the staker revenue share of a pool",
				Action: PoolRevenueShare,
				Flags: []cli.Flag{poolFlag,
					&cli.UintFlag{Name: "bps", Usage: "New share in basis points", Required: true},
				},
			},
		},
	}
}

func PoolCreate(ctx context.Context, cmd *cli.Command) error {
	influencer := cmd.Args().First()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if influencer == "" {
		if !interactive {
			return cli.Exit("influencer id is required", 1)
		}
		var err error
		influencer, err = (&promptui.Prompt{
			Label: "Influencer id",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("influencer id is required")
				}
				return nil
			},
		}).Run()
		if err != nil {
			return err
		}
	}

	lcfg := App.ledger.Config()
	shareBps := lcfg.DefaultRevenueShareBps
	if cmd.IsSet("revenue-share") {
		shareBps = cmd.Uint("revenue-share")
	} else if interactive {
		val, err := getInt("Staker revenue share (bps)", int(shareBps), 0, int(lcfg.MaxRevenueShareBps))
		if err != nil {
			return err
		}
		shareBps = uint64(val)
	}

	minStake := lcfg.DefaultMinStake
	if cmd.IsSet("min-stake") {
		var err error
		if minStake, err = fixedpoint.ParseTokens(cmd.String("min-stake")); err != nil {
			return err
		}
	} else if interactive {
		var err error
		if minStake, err = getTokens("Minimum stake (tokens)", minStake, lcfg.AbsoluteMinStake); err != nil {
			return err
		}
	}

	pool, err := App.ledger.CreatePool(ctx, strings.TrimSpace(influencer), shareBps, minStake)
	if err != nil {
		return err
	}
	fmt.Printf("Pool %s created: revenue share %d bps, min stake %s\n", pool.ID(), pool.RevenueShareBps,
		fixedpoint.Format(pool.MinStake))
	return nil
}

func PoolsList(ctx context.Context, cmd *cli.Command) error {
	q := searchcache.Query{
		Sort:       searchcache.SortField(cmd.String("sort")),
		Descending: !cmd.Bool("asc"),
		Page:       int(cmd.Int("page")),
		PageSize:   int(cmd.Int("page-size")),
	}
	if cmd.IsSet("active") {
		q.Active = optional.NewBool(cmd.Bool("active"))
	}
	if cmd.IsSet("min-staked") {
		amount, err := fixedpoint.ParseTokens(cmd.String("min-staked"))
		if err != nil {
			return err
		}
		q.MinTotalStaked = optional.NewUint64(amount)
	}
	if cmd.IsSet("tier") {
		q.Tier = optional.NewString(cmd.String("tier"))
	}
	if cmd.IsSet("influencer") {
		q.Influencer = optional.NewString(cmd.String("influencer"))
	}
	res, err := App.searcher.Search(ctx, q)
	if err != nil {
		return err
	}

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Pool\tTier\tStakers\tTotal Staked\tRev Share\tRewards Paid\tAPY\tActive\t")
	for _, pool := range res.Pools {
		estimate := "n/a"
		if pool.APY != nil {
			estimate = pool.APY.Percent()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\t%v\t\n", pool.ID(), pool.Tier, pool.StakerCount,
			fixedpoint.Format(pool.TotalStaked), pool.RevenueShareBps, fixedpoint.Format(pool.TotalRewardsDistributed),
			estimate, pool.IsActive)
	}
	tw.Flush()
	fmt.Print(out.String())
	fmt.Printf("page %d, %d of %d pools\n", res.Page, len(res.Pools), res.Total)
	return nil
}

func PoolInfo(ctx context.Context, cmd *cli.Command) error {
	pool, err := App.ledger.Pool(ctx, cmd.String("pool"))
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Influencer:\t%s\n", pool.InfluencerID)
	fmt.Fprintf(tw, "Tier:\t%s\n", App.ledger.PoolTier(pool))
	fmt.Fprintf(tw, "Active:\t%v\n", pool.IsActive)
	fmt.Fprintf(tw, "Created:\t%s\n", pool.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Stakers:\t%d\n", pool.StakerCount)
	fmt.Fprintf(tw, "Total Staked:\t%s\n", fixedpoint.Format(pool.TotalStaked))
	fmt.Fprintf(tw, "Min Stake:\t%s\n", fixedpoint.Format(pool.MinStake))
	fmt.Fprintf(tw, "Revenue Share:\t%d bps\n", pool.RevenueShareBps)
	fmt.Fprintf(tw, "Rewards Distributed:\t%s\n", fixedpoint.Format(pool.TotalRewardsDistributed))
	fmt.Fprintf(tw, "Undistributed:\t%s\n", fixedpoint.Format(pool.PendingRewards))
	if est, ok := App.apy.Estimate(pool.ID()); ok {
		fmt.Fprintf(tw, "APY:\t%s\n", est)
	} else {
		fmt.Fprintf(tw, "APY:\tnot yet estimated\n")
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolLedger(ctx context.Context, cmd *cli.Command) error {
	poolID := cmd.String("pool")
	pool, err := App.ledger.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	stakes, err := App.ledger.Stakes(ctx, poolID)
	if err != nil {
		return err
	}
	classifier := App.ledger.Classifier()

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Staker\tStaked\tTier\tPending\tTotal Claimed\tPct\tStaked At\t")
	for _, stake := range stakes {
		var pct float64
		if pool.TotalStaked > 0 {
			pct = float64(stake.Amount) / float64(pool.TotalStaked) * 100
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t\n", stake.Staker, fixedpoint.Format(stake.Amount),
			classifier.Classify(stake.Amount), fixedpoint.Format(stake.PendingRewards),
			fixedpoint.Format(stake.TotalClaimed), pct, stake.StakedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%s\t\t%s distributed\t\t\t\n", fixedpoint.Format(pool.TotalStaked),
		App.ledger.PoolTier(pool), fixedpoint.Format(pool.TotalRewardsDistributed))
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func StakeAdd(ctx context.Context, cmd *cli.Command) error {
	amount, err := fixedpoint.ParseTokens(cmd.String("amount"))
	if err != nil {
		return err
	}
	res, err := App.ledger.Stake(ctx, cmd.String("staker"), cmd.String("pool"), amount)
	if err != nil {
		return err
	}
	printStakeResult(res)
	return nil
}

func StakeRemove(ctx context.Context, cmd *cli.Command) error {
	amount, err := fixedpoint.ParseTokens(cmd.String("amount"))
	if err != nil {
		return err
	}
	res, err := App.ledger.Unstake(ctx, cmd.String("staker"), cmd.String("pool"), amount)
	if err != nil {
		return err
	}
	printStakeResult(res)
	return nil
}

func printStakeResult(res ledger.StakeResult) {
	fmt.Printf("%s now has %s staked in pool %s (pool total %s)\n", res.Stake.Staker, fixedpoint.Format(res.Stake.Amount),
		res.Pool.ID(), fixedpoint.Format(res.Pool.TotalStaked))
	if res.TierChanged() {
		fmt.Printf("tier changed: %s -> %s\n", res.OldTier, res.NewTier)
	}
}

func PoolAccrue(ctx context.Context, cmd *cli.Command) error {
	amount, err := fixedpoint.ParseTokens(cmd.String("amount"))
	if err != nil {
		return err
	}
	reward, replayed, err := App.ledger.AccrueRewardWithID(ctx, cmd.String("id"), cmd.String("pool"), amount)
	if err != nil {
		return err
	}
	if replayed {
		fmt.Printf("reward %s was already recorded\n", reward.ID)
		return nil
	}
	fmt.Printf("reward %s: earnings %s, stakers %s (credited %s, carried %s), influencer %s\n", reward.ID,
		fixedpoint.Format(reward.EarningAmount), fixedpoint.Format(reward.StakerShare), fixedpoint.Format(reward.Credited),
		fixedpoint.Format(reward.Carried), fixedpoint.Format(reward.InfluencerShare))
	return nil
}

func PoolClaim(ctx context.Context, cmd *cli.Command) error {
	res, err := App.ledger.ClaimWithKey(ctx, cmd.String("staker"), cmd.String("pool"), cmd.String("key"))
	if err != nil {
		return err
	}
	if res.Duplicate {
		fmt.Printf("claim %s already processed, nothing claimed\n", res.Key)
		return nil
	}
	fmt.Printf("claimed %s (lifetime %s) key:%s\n", fixedpoint.Format(res.Claimed), fixedpoint.Format(res.TotalClaimed),
		res.Key)
	return nil
}

func PoolHistory(ctx context.Context, cmd *cli.Command) error {
	records, err := App.ledger.History(ctx, cmd.String("pool"), int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tAction\tStaker\tAmount\tTier\t")
	for _, rec := range records {
		amount := fixedpoint.Format(rec.Amount)
		if rec.Action == ledger.ActionRevenueShareUpdated {
			amount = strconv.FormatUint(rec.Amount, 10) + " bps"
		}
		tiers := ""
		if rec.OldTier != rec.NewTier {
			tiers = fmt.Sprintf("%s -> %s", rec.OldTier, rec.NewTier)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", rec.At.Format(time.RFC3339), rec.Action, rec.Staker, amount, tiers)
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func setPoolActive(ctx context.Context, cmd *cli.Command, active bool) error {
	pool, err := App.ledger.SetPoolActive(ctx, cmd.String("pool"), active)
	if err != nil {
		return err
	}
	fmt.Printf("pool %s active:%v\n", pool.ID(), pool.IsActive)
	return nil
}

func PoolRevenueShare(ctx context.Context, cmd *cli.Command) error {
	pool, err := App.ledger.UpdateRevenueShare(ctx, cmd.String("pool"), cmd.Uint("bps"))
	if err != nil {
		return err
	}
	fmt.Printf("pool %s revenue share now %d bps\n", pool.ID(), pool.RevenueShareBps)
	return nil
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func getTokens(prompt string, defVal uint64, minVal uint64) (uint64, error) {
	result, err := (&promptui.Prompt{
		Label:   prompt,
		Default: fixedpoint.Format(defVal),
		Validate: func(input string) error {
			value, err := fixedpoint.ParseTokens(input)
			if err != nil {
				return err
			}
			if value < minVal {
				return fmt.Errorf("value must be at least %s", fixedpoint.Format(minVal))
			}
			return nil
		},
	}).Run()
	if err != nil {
		return 0, err
	}
	return fixedpoint.ParseTokens(result)
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
