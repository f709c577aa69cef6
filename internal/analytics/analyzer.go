package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/backtest"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// DefaultAnnualization is trading days per year, used to annualize Sharpe
// and Sortino when Options does not override it.
const DefaultAnnualization = 252

// Options supplies the context a trade list alone does not carry.
type Options struct {
	// InitialEquity anchors total return and the trade-derived equity curve.
	// Zero disables total return.
	InitialEquity decimal.Decimal

	// EquityCurve, when present, drives period returns and drawdown. Without
	// it both fall back to per-trade returns and a cumulative-PnL curve
	// built from the trades in exit order.
	EquityCurve []backtest.EquityPoint

	// Annualization is the number of return periods per year. Zero means
	// DefaultAnnualization.
	Annualization float64

	// Signals maps signal id to the originating signal; used for the
	// catalyst and score breakdowns. Trades whose SourceSignalID has no
	// entry fall into the "unknown" bucket.
	Signals map[string]domain.EntrySignal

	Now func() time.Time
}

// Analyze reduces closed trades to a Report. It never returns an error:
// metrics that cannot be computed for the input are nil.
func Analyze(trades []domain.ClosedTrade, opts Options) Report {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	rep := Report{
		GeneratedAt: now().UTC(),
		TotalTrades: len(trades),
	}
	if len(trades) == 0 {
		return rep
	}

	ordered := make([]domain.ClosedTrade, len(trades))
	copy(ordered, trades)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	rep.Wins, rep.Losses = countOutcomes(ordered)
	rep.WinRate = ptr(float64(rep.Wins) / float64(len(ordered)))
	rep.ProfitFactor = profitFactor(ordered)
	rep.AvgHoldHours = avgHoldHours(ordered)

	fillPnLStats(&rep, ordered)
	fillStreaks(&rep, ordered)

	if opts.InitialEquity.IsPositive() {
		final := finalEquity(opts, ordered)
		pct, _ := final.Sub(opts.InitialEquity).
			Div(opts.InitialEquity).
			Mul(decimal.NewFromInt(100)).Float64()
		rep.TotalReturnPct = ptr(pct)
	}

	annualize := opts.Annualization
	if annualize <= 0 {
		annualize = DefaultAnnualization
	}
	returns := periodReturns(opts, ordered)
	rep.SharpeRatio = sharpe(returns, annualize)
	rep.SortinoRatio = sortino(returns, annualize)
	rep.MaxDrawdown = maxDrawdown(equityCurve(opts, ordered))

	rep.BreakdownByCatalyst = breakdownByCatalyst(ordered, opts.Signals)
	rep.BreakdownByScore = breakdownByScore(ordered, opts.Signals)
	rep.BreakdownByHoldTime = breakdownByHoldTime(ordered)
	return rep
}

// A zero-PnL trade counts as a loss: it paid commission without gaining.
func countOutcomes(trades []domain.ClosedTrade) (wins, losses int) {
	for _, t := range trades {
		if t.RealizedPnL.IsPositive() {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}

func profitFactor(trades []domain.ClosedTrade) *float64 {
	grossWin, grossLoss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if t.RealizedPnL.IsPositive() {
			grossWin = grossWin.Add(t.RealizedPnL)
		} else {
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
		}
	}
	if grossLoss.IsZero() {
		return nil
	}
	pf, _ := grossWin.Div(grossLoss).Float64()
	return ptr(pf)
}

func avgHoldHours(trades []domain.ClosedTrade) *float64 {
	var total time.Duration
	for _, t := range trades {
		total += t.HoldDuration
	}
	return ptr(total.Hours() / float64(len(trades)))
}

func fillPnLStats(rep *Report, trades []domain.ClosedTrade) {
	var winSum, lossSum, largestWin, largestLoss float64
	for _, t := range trades {
		pnl, _ := t.RealizedPnL.Float64()
		if t.RealizedPnL.IsPositive() {
			winSum += pnl
			if pnl > largestWin {
				largestWin = pnl
			}
		} else {
			lossSum += pnl
			if pnl < largestLoss {
				largestLoss = pnl
			}
		}
	}
	if rep.Wins > 0 {
		rep.AvgWin = ptr(winSum / float64(rep.Wins))
		rep.LargestWin = ptr(largestWin)
	}
	if rep.Losses > 0 {
		rep.AvgLoss = ptr(lossSum / float64(rep.Losses))
		rep.LargestLoss = ptr(largestLoss)
	}
	rep.Expectancy = ptr((winSum + lossSum) / float64(len(trades)))
}

func fillStreaks(rep *Report, trades []domain.ClosedTrade) {
	var winRun, lossRun int
	for _, t := range trades {
		if t.RealizedPnL.IsPositive() {
			winRun++
			lossRun = 0
		} else {
			lossRun++
			winRun = 0
		}
		if winRun > rep.MaxWinStreak {
			rep.MaxWinStreak = winRun
		}
		if lossRun > rep.MaxLossStreak {
			rep.MaxLossStreak = lossRun
		}
	}
}

func finalEquity(opts Options, trades []domain.ClosedTrade) decimal.Decimal {
	if n := len(opts.EquityCurve); n > 0 {
		return opts.EquityCurve[n-1].Equity
	}
	eq := opts.InitialEquity
	for _, t := range trades {
		eq = eq.Add(t.RealizedPnL)
	}
	return eq
}

// periodReturns prefers equity-curve deltas; with no curve it falls back to
// per-trade fractional returns.
func periodReturns(opts Options, trades []domain.ClosedTrade) []float64 {
	if len(opts.EquityCurve) >= 2 {
		out := make([]float64, 0, len(opts.EquityCurve)-1)
		for i := 1; i < len(opts.EquityCurve); i++ {
			prev := opts.EquityCurve[i-1].Equity
			if prev.IsZero() {
				continue
			}
			r, _ := opts.EquityCurve[i].Equity.Sub(prev).Div(prev).Float64()
			out = append(out, r)
		}
		return out
	}
	out := make([]float64, 0, len(trades))
	for _, t := range trades {
		pct, _ := t.RealizedPnLPct.Float64()
		out = append(out, pct/100)
	}
	return out
}

func sharpe(returns []float64, annualize float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	sd := stddev(returns)
	if sd == 0 {
		return nil
	}
	return ptr(mean(returns) / sd * math.Sqrt(annualize))
}

func sortino(returns []float64, annualize float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return nil
	}
	sd := stddev(downside)
	if sd == 0 {
		return nil
	}
	return ptr(mean(returns) / sd * math.Sqrt(annualize))
}

type equityPoint struct {
	at    time.Time
	value float64
}

// equityCurve converts the supplied curve, or synthesizes one from
// cumulative trade PnL when no curve was recorded.
func equityCurve(opts Options, trades []domain.ClosedTrade) []equityPoint {
	if len(opts.EquityCurve) > 0 {
		out := make([]equityPoint, 0, len(opts.EquityCurve))
		for _, p := range opts.EquityCurve {
			v, _ := p.Equity.Float64()
			out = append(out, equityPoint{at: p.Time, value: v})
		}
		return out
	}

	eq := opts.InitialEquity
	if !eq.IsPositive() {
		eq = decimal.Zero
	}
	out := make([]equityPoint, 0, len(trades)+1)
	if len(trades) > 0 {
		v, _ := eq.Float64()
		out = append(out, equityPoint{at: trades[0].ExitTime, value: v})
	}
	for _, t := range trades {
		eq = eq.Add(t.RealizedPnL)
		v, _ := eq.Float64()
		out = append(out, equityPoint{at: t.ExitTime, value: v})
	}
	return out
}

func maxDrawdown(curve []equityPoint) *Drawdown {
	if len(curve) < 2 {
		return nil
	}

	peak := curve[0]
	var worst Drawdown
	for _, p := range curve {
		if p.value > peak.value {
			peak = p
		}
		if peak.value <= 0 {
			continue
		}
		dd := (peak.value - p.value) / peak.value
		if dd > worst.Pct {
			worst = Drawdown{Pct: dd, PeakDate: peak.at, TroughDate: p.at}
		}
	}
	if worst.Pct == 0 {
		worst = Drawdown{PeakDate: curve[0].at, TroughDate: curve[0].at}
	}
	return &worst
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
