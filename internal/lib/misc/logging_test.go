package misc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimalHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMinimalHandler(&buf, MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo}}))

	Infof(logger, "staked %d", 5)
	assert.Equal(t, "staked 5\n", buf.String())

	buf.Reset()
	Debugf(logger, "hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.With("pool", "alice").Warn("careful", "n", 2)
	assert.Equal(t, `WARN: careful {"n":"2","pool":"alice"}`+"\n", buf.String())
}

func TestJSONLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJSONLogHandler(&buf, slog.LevelInfo))
	Errorf(logger, "boom %s", "now")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "boom now", out["message"])
	assert.Equal(t, "ERROR", out["severity"])
}

func TestSetUintFromEnv(t *testing.T) {
	t.Setenv("TEST_UINT", "42")
	var v uint64 = 7
	require.NoError(t, SetUintFromEnv(&v, "TEST_UINT"))
	assert.Equal(t, uint64(42), v)

	require.NoError(t, SetUintFromEnv(&v, "TEST_UINT_UNSET"))
	assert.Equal(t, uint64(42), v)

	t.Setenv("TEST_UINT", "nope")
	assert.Error(t, SetUintFromEnv(&v, "TEST_UINT"))
	assert.Equal(t, "dflt", GetSetting("TEST_SETTING_UNSET", "dflt"))
}
