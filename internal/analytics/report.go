// Package analytics aggregates closed trades into a performance report.
// Every computation is pure and total: degenerate inputs (no trades, a
// single trade, zero variance) produce nil metrics instead of panics, so a
// report can always be rendered.
package analytics

import "time"

// Report is the structured performance document. Metrics that are undefined
// for the input (no trades, zero variance, no losses) are nil and serialize
// as JSON null; presentation is a downstream concern.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalTrades int `json:"total_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`

	TotalReturnPct *float64  `json:"total_return_pct"`
	WinRate        *float64  `json:"win_rate"`
	ProfitFactor   *float64  `json:"profit_factor"`
	SharpeRatio    *float64  `json:"sharpe_ratio"`
	SortinoRatio   *float64  `json:"sortino_ratio"`
	MaxDrawdown    *Drawdown `json:"max_drawdown"`
	AvgHoldHours   *float64  `json:"avg_hold_hours"`

	AvgWin        *float64 `json:"avg_win"`
	AvgLoss       *float64 `json:"avg_loss"`
	Expectancy    *float64 `json:"expectancy"`
	LargestWin    *float64 `json:"largest_win"`
	LargestLoss   *float64 `json:"largest_loss"`
	MaxWinStreak  int      `json:"max_win_streak"`
	MaxLossStreak int      `json:"max_loss_streak"`

	BreakdownByCatalyst []GroupStats `json:"breakdown_by_catalyst"`
	BreakdownByScore    []GroupStats `json:"breakdown_by_score"`
	BreakdownByHoldTime []GroupStats `json:"breakdown_by_hold_time"`
}

// Drawdown is the largest peak-to-trough equity decline.
type Drawdown struct {
	Pct        float64   `json:"pct"`
	PeakDate   time.Time `json:"peak_date"`
	TroughDate time.Time `json:"trough_date"`
}

// GroupStats summarizes the trades falling into one breakdown bucket.
type GroupStats struct {
	Key          string   `json:"key"`
	Trades       int      `json:"trades"`
	WinRate      *float64 `json:"win_rate"`
	AvgReturnPct *float64 `json:"avg_return_pct"`
	TotalPnL     float64  `json:"total_pnl"`
}

func ptr(v float64) *float64 { return &v }
