// Package config loads the engine configuration once at startup: defaults, then the YAML file, then TOKENOMICS_*
// environment overrides.  The result is validated and handed to each component by value.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gary322/twist-sub006/internal/lib/apy"
	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/events"
	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/misc"
	"github.com/gary322/twist-sub006/internal/lib/searchcache"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

const EnvPrefix = "TOKENOMICS_"

var ErrInvalidConfig = errors.New("invalid configuration")

// Tokens is a token amount written in whole (decimal) tokens in the config file, ie: "100" or "0.5".
type Tokens uint64

func (t Tokens) MarshalText() ([]byte, error) {
	return []byte(fixedpoint.Format(uint64(t))), nil
}

func (t *Tokens) UnmarshalText(text []byte) error {
	amount, err := fixedpoint.ParseTokens(string(text))
	if err != nil {
		return err
	}
	*t = Tokens(amount)
	return nil
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Decay    DecayConfig    `yaml:"decay"`
	APY      apy.Config     `yaml:"apy"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   events.Config  `yaml:"events"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

type DatabaseConfig struct {
	// Path of the SQLite database.  Empty keeps everything in memory.
	Path string `yaml:"path"`
}

type LedgerConfig struct {
	TierBasis              tier.Basis  `yaml:"tier_basis"`
	Tiers                  []tier.Band `yaml:"tiers"`
	AbsoluteMinStake       Tokens      `yaml:"absolute_min_stake"`
	DefaultMinStake        Tokens      `yaml:"default_min_stake"`
	DefaultRevenueShareBps uint64      `yaml:"default_revenue_share_bps"`
	MaxRevenueShareBps     uint64      `yaml:"max_revenue_share_bps"`
	ConflictRetries        int         `yaml:"conflict_retries"`
}

type DecayConfig struct {
	DailyRateBps     uint64        `yaml:"daily_rate_bps"`
	TreasurySplitBps uint64        `yaml:"treasury_split_bps"`
	Interval         time.Duration `yaml:"interval"`
	InitialSupply    Tokens        `yaml:"initial_supply"`
}

type CacheConfig struct {
	TTL  time.Duration `yaml:"ttl"`
	Size int           `yaml:"size"`
}

type DaemonConfig struct {
	// MetricsListen is the address the prometheus endpoint listens on; empty disables it.
	MetricsListen string `yaml:"metrics_listen"`
	// DecayRetries bounds retries of a failed decay run within one interval.
	DecayRetries int `yaml:"decay_retries"`
}

func Default() Config {
	lc := ledger.DefaultConfig()
	return Config{
		Ledger: LedgerConfig{
			TierBasis:              lc.TierBasis,
			Tiers:                  tier.DefaultBands(),
			AbsoluteMinStake:       Tokens(lc.AbsoluteMinStake),
			DefaultMinStake:        Tokens(lc.DefaultMinStake),
			DefaultRevenueShareBps: lc.DefaultRevenueShareBps,
			MaxRevenueShareBps:     lc.MaxRevenueShareBps,
			ConflictRetries:        lc.ConflictRetries,
		},
		Decay: DecayConfig{
			DailyRateBps:     decay.DefaultDailyRateBps,
			TreasurySplitBps: decay.DefaultTreasurySplitBps,
			Interval:         decay.DefaultInterval,
			InitialSupply:    Tokens(decay.DefaultTotalSupplyTokens * fixedpoint.OneToken),
		},
		APY: apy.DefaultConfig(),
		Cache: CacheConfig{
			TTL:  searchcache.DefaultTTL,
			Size: searchcache.DefaultSize,
		},
		Events: events.DefaultConfig(),
		Daemon: DaemonConfig{
			MetricsListen: ":9100",
			DecayRetries:  10,
		},
	}
}

// DefaultPath is the per-user config file location.
func DefaultPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "tokenomics", "tokenomics.yaml"), nil
}

// Load builds the configuration from defaults, the YAML file at path (skipped when path is empty) and environment
// overrides.  Unknown keys in the file are an error.
func Load(logger *slog.Logger, path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
		misc.Debugf(logger, "loaded config file:%s", path)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	err = decoder.Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database.Path = misc.GetSetting(EnvPrefix+"DB", c.Database.Path)
	c.Daemon.MetricsListen = misc.GetSetting(EnvPrefix+"METRICS_LISTEN", c.Daemon.MetricsListen)
	c.Ledger.TierBasis = tier.Basis(misc.GetSetting(EnvPrefix+"TIER_BASIS", string(c.Ledger.TierBasis)))

	for env, dest := range map[string]*uint64{
		"DECAY_RATE_BPS":        &c.Decay.DailyRateBps,
		"TREASURY_SPLIT_BPS":    &c.Decay.TreasurySplitBps,
		"REVENUE_SHARE_BPS":     &c.Ledger.DefaultRevenueShareBps,
		"MAX_REVENUE_SHARE_BPS": &c.Ledger.MaxRevenueShareBps,
	} {
		if err := misc.SetUintFromEnv(dest, EnvPrefix+env); err != nil {
			return err
		}
	}
	for env, dest := range map[string]*time.Duration{
		"DECAY_INTERVAL": &c.Decay.Interval,
		"APY_INTERVAL":   &c.APY.RefreshInterval,
		"APY_WINDOW":     &c.APY.Window,
		"CACHE_TTL":      &c.Cache.TTL,
	} {
		if err := misc.SetDurationFromEnv(dest, EnvPrefix+env); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	if err := tier.ValidateBands(c.Ledger.Tiers); err != nil {
		return err
	}
	if err := c.LedgerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: ledger: %w", ErrInvalidConfig, err)
	}
	if c.Decay.DailyRateBps > fixedpoint.BpsDenominator || c.Decay.TreasurySplitBps > fixedpoint.BpsDenominator {
		return fmt.Errorf("%w: decay rate %d / split %d bps: %w", ErrInvalidConfig, c.Decay.DailyRateBps,
			c.Decay.TreasurySplitBps, fixedpoint.ErrInvalidBps)
	}
	if c.Decay.Interval <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, decay.ErrInvalidInterval)
	}
	if err := c.APY.Validate(); err != nil {
		return fmt.Errorf("%w: apy: %w", ErrInvalidConfig, err)
	}
	if c.Cache.TTL <= 0 || c.Cache.TTL > time.Minute {
		return fmt.Errorf("%w: cache ttl %v must be between 0 and 1m", ErrInvalidConfig, c.Cache.TTL)
	}
	return nil
}

func (c Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		TierBasis:              c.Ledger.TierBasis,
		AbsoluteMinStake:       uint64(c.Ledger.AbsoluteMinStake),
		DefaultMinStake:        uint64(c.Ledger.DefaultMinStake),
		DefaultRevenueShareBps: c.Ledger.DefaultRevenueShareBps,
		MaxRevenueShareBps:     c.Ledger.MaxRevenueShareBps,
		ConflictRetries:        c.Ledger.ConflictRetries,
	}
}

func (c Config) Classifier() (*tier.Classifier, error) {
	return tier.NewClassifier(c.Ledger.Tiers)
}

// Save writes the configuration to path, replacing the file only once fully written.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return fmt.Errorf("error making directory:%s, error:%w", filepath.Dir(path), err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	encoder := yaml.NewEncoder(temp)
	encoder.SetIndent(2)
	if err = encoder.Encode(c); err == nil {
		err = encoder.Close()
	}
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving configuration: %w", err)
	}
	if err = temp.Close(); err != nil {
		_ = os.Remove(temp.Name())
		return err
	}
	return os.Rename(temp.Name(), path)
}
