package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSignals(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "signals.json", `[
		{"id": "s1", "ticker": "ABCD", "score": 0.9, "sentiment": 0.6,
		 "catalyst_type": "fda", "strategy_tag": "catalyst-v1",
		 "timestamp": "2026-03-02T09:30:00Z"}
	]`)

	signals, err := LoadSignals(path)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "ABCD", signals[0].Ticker)
	assert.Equal(t, domain.CatalystFDA, signals[0].CatalystType)
	assert.Equal(t, 0.9, signals[0].Score)
}

func TestLoadSignalsRejectsMissingTicker(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "signals.json", `[{"id": "s1", "timestamp": "2026-03-02T09:30:00Z"}]`)

	_, err := LoadSignals(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ticker")
}

func TestLoadBarsAcceptsStringAndNumberPrices(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bars.json", `[
		{"ticker": "ABCD", "timestamp": "2026-03-02T09:30:00Z",
		 "open": "10.00", "high": 10.25, "low": "9.90", "close": "10.20", "volume": 50000}
	]`)

	series, err := LoadBars(path)
	require.NoError(t, err)

	bar, ok := series.BarAt("ABCD", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), time.Hour)
	require.True(t, ok)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("10.20")))
	assert.Equal(t, int64(50000), bar.Volume)
}

func TestLoadBarsRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bars.json", `[]`)

	_, err := LoadBars(path)
	require.Error(t, err)
}
