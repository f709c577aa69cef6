package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "backtest"
log_level = "debug"

[backtest]
signals_path = "signals.json"
bars_path = "bars.json"
initial_cash = 25000.0
tick_resolution = "15m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backtest", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, 15*time.Minute, cfg.Backtest.TickResolution.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 0.10, cfg.Backtest.PositionSizePct)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CATALYST_POSTGRES_PASSWORD", "sekret")
	t.Setenv("CATALYST_MONITOR_INTERVAL", "30s")
	t.Setenv("CATALYST_NOTIFY_EVENTS", "position_stuck, storage_failure")

	path := writeConfig(t, `mode = "monitor"`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sekret", cfg.Postgres.Password)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, []string{"position_stuck", "storage_failure"}, cfg.Notify.Events)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "warp"
	cfg.LogLevel = "loud"
	cfg.Exit.StopLossPct = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
}

func TestValidateBacktestRequiresDataPaths(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "backtest"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signals_path")
	assert.Contains(t, err.Error(), "bars_path")

	cfg.Backtest.SignalsPath = "signals.json"
	cfg.Backtest.BarsPath = "bars.json"
	require.NoError(t, cfg.Validate())
}

func TestValidateMonitorMode(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "monitor"

	err := cfg.Validate()
	require.Error(t, err, "monitor mode needs a quote endpoint")
	assert.Contains(t, err.Error(), "base_url")

	cfg.MarketData.BaseURL = "https://quotes.example.com"
	require.NoError(t, cfg.Validate())

	cfg.Monitor.Holidays = []string{"2026-07-03", "not-a-date"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid holiday")
}

func TestValidateOptimizeMode(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "optimize"
	cfg.Backtest.SignalsPath = "signals.json"
	cfg.Backtest.BarsPath = "bars.json"
	require.NoError(t, cfg.Validate())

	cfg.Optimizer.Objective = "luck"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown objective")
}

func TestValidateTelegramFieldsSetTogether(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.Backtest.SignalsPath = "signals.json"
	cfg.Backtest.BarsPath = "bars.json"
	cfg.Notify.TelegramToken = "token-only"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "aws-secret"
	cfg.Notify.TelegramToken = "bot-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original stays untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, "localhost:6379", red.Redis.Addr)
}
