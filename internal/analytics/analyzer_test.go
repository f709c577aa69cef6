package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/backtest"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

var baseTime = time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

// trade builds a closed trade with the given realized pnl, hold duration, and
// exit time offset in hours from baseTime.
func trade(t *testing.T, signalID, pnl string, hold time.Duration, exitOffsetHours int) domain.ClosedTrade {
	t.Helper()
	exitTime := baseTime.Add(time.Duration(exitOffsetHours) * time.Hour)
	realized := decimal.RequireFromString(pnl)
	return domain.ClosedTrade{
		Position: domain.Position{
			ID:             "pos-" + signalID,
			Ticker:         "ABCD",
			Quantity:       100,
			EntryPrice:     decimal.RequireFromString("10.00"),
			CostBasis:      decimal.RequireFromString("1000.00"),
			EntryTime:      exitTime.Add(-hold),
			SourceSignalID: signalID,
			Status:         domain.PositionStatusClosed,
		},
		ExitTime:       exitTime,
		RealizedPnL:    realized,
		RealizedPnLPct: realized.Div(decimal.NewFromInt(10)), // cost basis 1000 -> pct = pnl/10
		HoldDuration:   hold,
		ExitReason:     domain.ExitStopLoss,
	}
}

func TestAnalyzeEmptyInputGivesNilMetrics(t *testing.T) {
	t.Parallel()

	rep := Analyze(nil, Options{})

	assert.Zero(t, rep.TotalTrades)
	assert.Nil(t, rep.TotalReturnPct)
	assert.Nil(t, rep.WinRate)
	assert.Nil(t, rep.ProfitFactor)
	assert.Nil(t, rep.SharpeRatio)
	assert.Nil(t, rep.SortinoRatio)
	assert.Nil(t, rep.MaxDrawdown)
	assert.Nil(t, rep.AvgHoldHours)
	assert.Empty(t, rep.BreakdownByCatalyst)
}

func TestAnalyzeSingleTradeSkipsVarianceMetrics(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{trade(t, "s1", "110.00", 26*time.Hour, 0)}
	rep := Analyze(trades, Options{InitialEquity: decimal.RequireFromString("1000")})

	assert.Equal(t, 1, rep.TotalTrades)
	require.NotNil(t, rep.WinRate)
	assert.InDelta(t, 1.0, *rep.WinRate, 1e-9)
	require.NotNil(t, rep.TotalReturnPct)
	assert.InDelta(t, 11.0, *rep.TotalReturnPct, 1e-9)
	require.NotNil(t, rep.AvgHoldHours)
	assert.InDelta(t, 26.0, *rep.AvgHoldHours, 1e-9)

	assert.Nil(t, rep.SharpeRatio, "one return period has no variance")
	assert.Nil(t, rep.SortinoRatio)
	assert.Nil(t, rep.ProfitFactor, "no losses -> undefined")
}

func TestAnalyzeZeroVarianceReturnsNilSharpe(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{
		trade(t, "s1", "50.00", time.Hour, 0),
		trade(t, "s2", "50.00", time.Hour, 1),
		trade(t, "s3", "50.00", time.Hour, 2),
	}
	rep := Analyze(trades, Options{InitialEquity: decimal.RequireFromString("1000")})

	assert.Nil(t, rep.SharpeRatio)
	assert.Nil(t, rep.SortinoRatio)
	require.NotNil(t, rep.WinRate)
	assert.InDelta(t, 1.0, *rep.WinRate, 1e-9)
}

func TestAnalyzeProfitFactor(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{
		trade(t, "s1", "110.00", time.Hour, 0),
		trade(t, "s2", "90.00", time.Hour, 1),
		trade(t, "s3", "-60.00", time.Hour, 2),
		trade(t, "s4", "-40.00", time.Hour, 3),
	}
	rep := Analyze(trades, Options{})

	require.NotNil(t, rep.ProfitFactor)
	assert.InDelta(t, 2.0, *rep.ProfitFactor, 1e-9) // 200 / 100
	assert.Equal(t, 2, rep.Wins)
	assert.Equal(t, 2, rep.Losses)
	require.NotNil(t, rep.WinRate)
	assert.InDelta(t, 0.5, *rep.WinRate, 1e-9)
}

func TestAnalyzePnLStatsAndStreaks(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{
		trade(t, "s1", "100.00", time.Hour, 0),
		trade(t, "s2", "50.00", time.Hour, 1),
		trade(t, "s3", "-30.00", time.Hour, 2),
		trade(t, "s4", "-70.00", time.Hour, 3),
		trade(t, "s5", "-20.00", time.Hour, 4),
		trade(t, "s6", "40.00", time.Hour, 5),
	}
	rep := Analyze(trades, Options{})

	require.NotNil(t, rep.AvgWin)
	assert.InDelta(t, 63.333333, *rep.AvgWin, 1e-4)
	require.NotNil(t, rep.AvgLoss)
	assert.InDelta(t, -40.0, *rep.AvgLoss, 1e-9)
	require.NotNil(t, rep.LargestWin)
	assert.InDelta(t, 100.0, *rep.LargestWin, 1e-9)
	require.NotNil(t, rep.LargestLoss)
	assert.InDelta(t, -70.0, *rep.LargestLoss, 1e-9)
	require.NotNil(t, rep.Expectancy)
	assert.InDelta(t, 70.0/6, *rep.Expectancy, 1e-9)
	assert.Equal(t, 2, rep.MaxWinStreak)
	assert.Equal(t, 3, rep.MaxLossStreak)
}

func TestAnalyzeMaxDrawdownFromEquityCurve(t *testing.T) {
	t.Parallel()

	curve := []backtest.EquityPoint{
		{Time: baseTime, Equity: decimal.RequireFromString("1000")},
		{Time: baseTime.Add(1 * time.Hour), Equity: decimal.RequireFromString("1200")},
		{Time: baseTime.Add(2 * time.Hour), Equity: decimal.RequireFromString("900")},
		{Time: baseTime.Add(3 * time.Hour), Equity: decimal.RequireFromString("1100")},
	}
	trades := []domain.ClosedTrade{
		trade(t, "s1", "100.00", time.Hour, 0),
		trade(t, "s2", "-50.00", time.Hour, 1),
	}
	rep := Analyze(trades, Options{
		InitialEquity: decimal.RequireFromString("1000"),
		EquityCurve:   curve,
	})

	require.NotNil(t, rep.MaxDrawdown)
	assert.InDelta(t, 0.25, rep.MaxDrawdown.Pct, 1e-9) // (1200-900)/1200
	assert.Equal(t, baseTime.Add(1*time.Hour), rep.MaxDrawdown.PeakDate)
	assert.Equal(t, baseTime.Add(2*time.Hour), rep.MaxDrawdown.TroughDate)

	require.NotNil(t, rep.TotalReturnPct)
	assert.InDelta(t, 10.0, *rep.TotalReturnPct, 1e-9) // curve end 1100 vs 1000
}

func TestAnalyzeDrawdownFromTradesWithoutCurve(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{
		trade(t, "s1", "200.00", time.Hour, 0),
		trade(t, "s2", "-300.00", time.Hour, 1),
		trade(t, "s3", "100.00", time.Hour, 2),
	}
	rep := Analyze(trades, Options{InitialEquity: decimal.RequireFromString("1000")})

	require.NotNil(t, rep.MaxDrawdown)
	assert.InDelta(t, 0.25, rep.MaxDrawdown.Pct, 1e-9) // 1200 -> 900
	assert.Equal(t, baseTime, rep.MaxDrawdown.PeakDate)
	assert.Equal(t, baseTime.Add(1*time.Hour), rep.MaxDrawdown.TroughDate)
}

func TestAnalyzeSharpePositiveForRisingCurve(t *testing.T) {
	t.Parallel()

	curve := []backtest.EquityPoint{
		{Time: baseTime, Equity: decimal.RequireFromString("1000")},
		{Time: baseTime.Add(1 * time.Hour), Equity: decimal.RequireFromString("1020")},
		{Time: baseTime.Add(2 * time.Hour), Equity: decimal.RequireFromString("1025")},
		{Time: baseTime.Add(3 * time.Hour), Equity: decimal.RequireFromString("1060")},
	}
	trades := []domain.ClosedTrade{trade(t, "s1", "60.00", time.Hour, 3)}
	rep := Analyze(trades, Options{
		InitialEquity: decimal.RequireFromString("1000"),
		EquityCurve:   curve,
	})

	require.NotNil(t, rep.SharpeRatio)
	assert.Positive(t, *rep.SharpeRatio)
	assert.Nil(t, rep.SortinoRatio, "no negative periods -> no downside deviation")
}

func TestAnalyzeBreakdownByCatalyst(t *testing.T) {
	t.Parallel()

	signals := map[string]domain.EntrySignal{
		"s1": {ID: "s1", CatalystType: domain.CatalystFDA, Score: 0.9},
		"s2": {ID: "s2", CatalystType: domain.CatalystFDA, Score: 0.7},
		"s3": {ID: "s3", CatalystType: domain.CatalystEarnings, Score: 0.3},
	}
	trades := []domain.ClosedTrade{
		trade(t, "s1", "100.00", 30*time.Minute, 0),
		trade(t, "s2", "-50.00", 2*time.Hour, 1),
		trade(t, "s3", "20.00", 30*time.Hour, 2),
		trade(t, "s4", "10.00", 100*time.Hour, 3), // no matching signal
	}
	rep := Analyze(trades, Options{Signals: signals})

	require.Len(t, rep.BreakdownByCatalyst, 3)
	byKey := make(map[string]GroupStats)
	for _, g := range rep.BreakdownByCatalyst {
		byKey[g.Key] = g
	}

	fda := byKey["fda"]
	assert.Equal(t, 2, fda.Trades)
	require.NotNil(t, fda.WinRate)
	assert.InDelta(t, 0.5, *fda.WinRate, 1e-9)
	assert.InDelta(t, 50.0, fda.TotalPnL, 1e-9)

	assert.Equal(t, 1, byKey["earnings"].Trades)
	assert.Equal(t, 1, byKey["unknown"].Trades)

	// Hold-time buckets: 30m, 2h, 30h, 100h.
	holds := make(map[string]int)
	for _, g := range rep.BreakdownByHoldTime {
		holds[g.Key] = g.Trades
	}
	assert.Equal(t, map[string]int{"<1h": 1, "1-6h": 1, "1-3d": 1, ">3d": 1}, holds)

	// Score buckets: 0.9 and 0.7 land in separate bands, 0.3 in its own,
	// missing signal in unknown.
	scores := make(map[string]int)
	for _, g := range rep.BreakdownByScore {
		scores[g.Key] = g.Trades
	}
	assert.Equal(t, map[string]int{"0.8-1.0": 1, "0.6-0.8": 1, "0.2-0.4": 1, "unknown": 1}, scores)
}
