package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/gary322/twist-sub006/internal/lib/apy"
	"github.com/gary322/twist-sub006/internal/lib/config"
	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/misc"
	"github.com/gary322/twist-sub006/internal/lib/searchcache"
	"github.com/gary322/twist-sub006/internal/lib/store"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *TokenomicsApp {
	log.SetFlags(0)
	var logger *slog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		// Are we running on something where output is a tty - so we're being run as CLI vs as a daemon
		logger = slog.New(misc.NewMinimalHandler(os.Stdout,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	} else {
		// not on console - output as json w/ key names google logging expects
		logger = slog.New(misc.NewJSONLogHandler(os.Stdout, logLevel))
	}
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	appConfig := &TokenomicsApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "tokenomics",
		Usage:   "Staking ledger, supply decay and yield estimation engine for influencer pools",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			return appConfig.initComponents(ctx, cmd)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			appConfig.close(ctx)
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("TOKENOMICS_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file.  Defaults to the per-user config file if it exists",
				Sources: cli.EnvVars("TOKENOMICS_CONFIG"),
				Aliases: []string{"c"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path.  Overrides the configuration file; empty uses an in-memory ledger",
				Sources: cli.EnvVars("TOKENOMICS_DB"),
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "Load .env.<profile> overrides, ie: dev, staging",
				Sources: cli.EnvVars("TOKENOMICS_PROFILE"),
				Aliases: []string{"p"},
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetPoolCmdOpts(),
			GetDecayCmdOpts(),
			GetConfigCmdOpts(),
		},
	}
	return appConfig
}

// Store is everything the engine persists.
type Store interface {
	ledger.Store
	decay.StateStore
}

type TokenomicsApp struct {
	cliCmd *cli.Command
	logger *slog.Logger

	cfg        config.Config
	cfgPath    string // may not exist yet
	store      Store
	ledger     *ledger.Ledger
	cache      *searchcache.Cache
	searcher   *searchcache.Searcher
	dispatcher *events.Dispatcher
	apy        *apy.Scheduler
	decayCalc  *decay.Calculator
	decayJob   *decay.Job
}

// initComponents loads configuration and builds every engine component, wired together, from it.
func (ac *TokenomicsApp) initComponents(ctx context.Context, cmd *cli.Command) error {
	if envfile := cmd.String("envfile"); envfile != "" {
		if err := loadNamedEnvFile(ac.logger, envfile); err != nil {
			return err
		}
	}
	misc.LoadEnvForProfile(ac.logger, cmd.String("profile"))

	cfgPath, exists, err := resolveConfigPath(cmd.String("config"))
	if err != nil {
		return err
	}
	loadPath := cfgPath
	if !exists {
		loadPath = ""
	}
	cfg, err := config.Load(ac.logger, loadPath)
	if err != nil {
		return err
	}
	if cmd.IsSet("db") {
		cfg.Database.Path = cmd.String("db")
	}
	ac.cfg, ac.cfgPath = cfg, cfgPath

	if cfg.Database.Path == "" {
		ac.logger.Warn("no database configured, ledger state is in-memory only")
		ac.store = store.NewMemoryStore()
	} else {
		sqlStore, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
		}
		misc.Debugf(ac.logger, "opened sqlite %s database:%s", store.Version(), cfg.Database.Path)
		ac.store = sqlStore
	}

	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}
	ac.dispatcher, err = events.NewDispatcher(ac.logger, cfg.Events, events.LogHandler(ac.logger))
	if err != nil {
		return err
	}
	ac.cache = searchcache.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
	ac.ledger, err = ledger.New(ac.logger, ac.store, classifier, cfg.LedgerConfig(),
		ledger.WithNotifier(ac.dispatcher),
		ledger.WithInvalidator(ac.cache))
	if err != nil {
		return err
	}
	ac.apy, err = apy.NewScheduler(ac.logger, ac.ledger, cfg.APY)
	if err != nil {
		return err
	}
	ac.searcher = searchcache.NewSearcher(ac.logger, ac.cache, ac.ledger, ac.apy, classifier)
	ac.decayCalc, err = decay.NewCalculator(cfg.Decay.Interval)
	if err != nil {
		return err
	}
	ac.decayJob = decay.NewJob(ac.logger, ac.store, ac.decayCalc, ac.dispatcher)
	return nil
}

// close delivers anything a one-shot command queued and releases the database.
func (ac *TokenomicsApp) close(ctx context.Context) {
	if ac.dispatcher != nil {
		ac.dispatcher.Flush(ctx)
	}
	if closer, ok := ac.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			ac.logger.Warn("closing database", "error", err)
		}
	}
}

// resolveConfigPath returns the explicit path, else the default per-user path, and whether that file exists.  An
// explicit path that doesn't exist yet is kept so 'config init' can write it.
func resolveConfigPath(explicit string) (string, bool, error) {
	path := explicit
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return "", false, nil
		}
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return "", false, err
	}
	return path, true, nil
}

func loadNamedEnvFile(logger *slog.Logger, envFile string) error {
	misc.Infof(logger, "loading env file:%s", envFile)
	return godotenv.Load(envFile)
}
