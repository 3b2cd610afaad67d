package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenomics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load(slog.Default(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uint64(50), cfg.Decay.DailyRateBps)
	assert.Equal(t, Tokens(100*fixedpoint.OneToken), cfg.Ledger.DefaultMinStake)

	classifier, err := cfg.Classifier()
	require.NoError(t, err)
	assert.Equal(t, tier.Bronze, classifier.Classify(1_000*fixedpoint.OneToken))
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
database:
  path: /var/lib/tokenomics.db
ledger:
  tier_basis: stake
  default_min_stake: "2.5"
  tiers:
    - {tier: bronze, min_tokens: 10}
    - {tier: silver, min_tokens: 20}
    - {tier: gold, min_tokens: 30}
    - {tier: platinum, min_tokens: 40}
decay:
  daily_rate_bps: 25
  interval: 12h
cache:
  ttl: 5s
`)
	cfg, err := Load(slog.Default(), path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tokenomics.db", cfg.Database.Path)
	assert.Equal(t, tier.BasisStake, cfg.Ledger.TierBasis)
	assert.Equal(t, Tokens(2_500_000_000), cfg.Ledger.DefaultMinStake)
	assert.Equal(t, uint64(40), cfg.Ledger.Tiers[3].MinTokens)
	assert.Equal(t, uint64(25), cfg.Decay.DailyRateBps)
	assert.Equal(t, 12*time.Hour, cfg.Decay.Interval)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	// untouched sections keep their defaults
	assert.Equal(t, uint64(9000), cfg.Decay.TreasurySplitBps)
	assert.Equal(t, Default().APY, cfg.APY)

	lc := cfg.LedgerConfig()
	assert.Equal(t, uint64(2_500_000_000), lc.DefaultMinStake)
	assert.Equal(t, tier.BasisStake, lc.TierBasis)
}

func TestLoadRejects(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"unknown key", "decay:\n  daily_rate: 5\n"},
		{"rate above 100%", "decay:\n  daily_rate_bps: 10001\n"},
		{"overlapping tiers", "ledger:\n  tiers:\n    - {tier: bronze, min_tokens: 10}\n    - {tier: silver, min_tokens: 10}\n    - {tier: gold, min_tokens: 30}\n    - {tier: platinum, min_tokens: 40}\n"},
		{"unknown tier", "ledger:\n  tiers:\n    - {tier: diamond, min_tokens: 10}\n"},
		{"bad basis", "ledger:\n  tier_basis: wallet\n"},
		{"bad amount", "ledger:\n  default_min_stake: lots\n"},
		{"min stake below absolute", "ledger:\n  default_min_stake: \"0.01\"\n"},
		{"zero interval", "decay:\n  interval: 0s\n"},
		{"ttl in minutes", "cache:\n  ttl: 5m\n"},
		{"apy window too short", "apy:\n  window: 1h\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(slog.Default(), writeFile(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(slog.Default(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyFileIsDefaults(t *testing.T) {
	cfg, err := Load(slog.Default(), writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOKENOMICS_DB", "/tmp/env.db")
	t.Setenv("TOKENOMICS_DECAY_RATE_BPS", "75")
	t.Setenv("TOKENOMICS_CACHE_TTL", "3s")
	t.Setenv("TOKENOMICS_TIER_BASIS", "stake")

	path := writeFile(t, "database:\n  path: /from/file.db\ndecay:\n  daily_rate_bps: 10\n")
	cfg, err := Load(slog.Default(), path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, uint64(75), cfg.Decay.DailyRateBps)
	assert.Equal(t, 3*time.Second, cfg.Cache.TTL)
	assert.Equal(t, tier.BasisStake, cfg.Ledger.TierBasis)

	t.Setenv("TOKENOMICS_TREASURY_SPLIT_BPS", "ninety")
	_, err = Load(slog.Default(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "ledger.db"
	cfg.Ledger.DefaultMinStake = Tokens(fixedpoint.OneToken / 2)
	cfg.Decay.Interval = 6 * time.Hour

	path := filepath.Join(t.TempDir(), "nested", "tokenomics.yaml")
	require.NoError(t, cfg.Save(path))
	loaded, err := Load(slog.Default(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
