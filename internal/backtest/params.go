package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// Params configures one simulation run.
//
// TickResolution is a deliberate fidelity/speed trade-off: the simulator only
// observes prices at tick boundaries, so a coarse resolution can miss
// intra-tick stop or target touches. Hourly is the default; callers wanting
// first-touch fidelity supply finer bars and a finer resolution.
type Params struct {
	InitialCash       decimal.Decimal
	PositionSizePct   float64 // fraction of available cash per entry
	MaxDailyVolumePct float64 // entry size cap as a fraction of the bar's volume; 0 disables
	Commission        decimal.Decimal
	StopLossPct       float64
	TakeProfitPct     float64
	MaxHold           time.Duration
	TickResolution    time.Duration

	// Entry filters applied to signals.
	MinScore      float64
	MinSentiment  float64
	CatalystTypes []domain.CatalystType // empty allows every catalyst type

	// FillAtThreshold fills stop/target exits at the threshold price instead
	// of the observed (possibly gapped) tick price.
	FillAtThreshold bool
}

// Validate rejects parameter combinations that would make a run meaningless.
// Failures here are configuration errors and fatal to the run.
func (p Params) Validate() error {
	if !p.InitialCash.IsPositive() {
		return fmt.Errorf("backtest: initial cash must be positive, got %s", p.InitialCash)
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 1 {
		return fmt.Errorf("backtest: position size pct must be in (0, 1], got %g", p.PositionSizePct)
	}
	if p.MaxDailyVolumePct < 0 || p.MaxDailyVolumePct > 1 {
		return fmt.Errorf("backtest: max daily volume pct must be in [0, 1], got %g", p.MaxDailyVolumePct)
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("backtest: stop loss pct must be in (0, 1), got %g", p.StopLossPct)
	}
	if p.TakeProfitPct <= 0 {
		return fmt.Errorf("backtest: take profit pct must be positive, got %g", p.TakeProfitPct)
	}
	if p.Commission.IsNegative() {
		return fmt.Errorf("backtest: commission must not be negative, got %s", p.Commission)
	}
	if p.TickResolution <= 0 {
		return fmt.Errorf("backtest: tick resolution must be positive, got %s", p.TickResolution)
	}
	return nil
}

// allowsCatalyst reports whether the signal's catalyst type passes the filter.
func (p Params) allowsCatalyst(ct domain.CatalystType) bool {
	if len(p.CatalystTypes) == 0 {
		return true
	}
	for _, allowed := range p.CatalystTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

// EquityPoint is one sample of total account value (cash plus open position
// market value) on the simulated clock.
type EquityPoint struct {
	Time   time.Time
	Equity decimal.Decimal
}

// Stats counts what happened during a run, including why entries were
// rejected and how many price-bar gaps were encountered.
type Stats struct {
	SignalsSeen       int
	EntriesOpened     int
	RejectedFilter    int
	RejectedCash      int
	RejectedLiquidity int
	BarGaps           int
	EndLiquidations   int
}

// Result is the complete outcome of one simulation run.
type Result struct {
	RunID       string
	Params      Params
	Trades      []domain.ClosedTrade
	EquityCurve []EquityPoint
	FinalCash   decimal.Decimal
	FinalEquity decimal.Decimal
	Stats       Stats
}
