// Package backtest replays historical price series against catalyst entry
// signals. The simulator and the live monitor share the same exit-rule
// evaluator and the same store contract, so a strategy behaves identically
// under replay and under wall-clock polling.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/rules"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/store/memory"
)

// Simulator replays signals against a price series and produces closed
// trades plus an equity curve. Runs share no state; one Simulator can drive
// many concurrent runs.
type Simulator struct {
	logger *slog.Logger
}

// NewSimulator creates a Simulator.
func NewSimulator(logger *slog.Logger) *Simulator {
	return &Simulator{logger: logger.With(slog.String("component", "simulator"))}
}

// pendingSignal tracks a signal waiting for its entry tick.
type pendingSignal struct {
	sig     domain.EntrySignal
	entered bool
}

// Run executes one simulation. The clock starts at the earlier of the first
// bar and the first signal, advances by params.TickResolution, and checks ctx
// between ticks so long ranges cancel cleanly at a tick boundary.
func (s *Simulator) Run(ctx context.Context, signals []domain.EntrySignal, series *PriceSeries, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start, end := series.Bounds()
	if start.IsZero() {
		return nil, fmt.Errorf("backtest: price series is empty")
	}

	pending := make([]*pendingSignal, 0, len(signals))
	for _, sig := range signals {
		pending = append(pending, &pendingSignal{sig: sig})
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].sig.Timestamp.Before(pending[j].sig.Timestamp)
	})

	res := &Result{
		RunID:  uuid.NewString(),
		Params: params,
		Stats:  Stats{SignalsSeen: len(signals)},
	}

	ledger := memory.NewPositionStore()
	cash := params.InitialCash

	for clock := start; !clock.After(end); clock = clock.Add(params.TickResolution) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cash = s.openEntries(ctx, ledger, pending, series, params, clock, cash, res)
		cash = s.applyExits(ctx, ledger, series, params, clock, cash, res)

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Time:   clock,
			Equity: cash.Add(openValue(ctx, ledger)),
		})
	}

	// Liquidate whatever is still open at the final observed price so the
	// run's P&L is fully realized.
	cash = s.liquidate(ctx, ledger, series, params, end, cash, res)

	res.FinalCash = cash
	res.FinalEquity = cash
	res.Trades, _ = ledger.ListClosed(ctx, domain.ClosedFilter{})
	sortTradesByExit(res.Trades)

	s.logger.DebugContext(ctx, "run complete",
		slog.String("run_id", res.RunID),
		slog.Int("trades", len(res.Trades)),
		slog.Int("bar_gaps", res.Stats.BarGaps),
		slog.String("final_equity", res.FinalEquity.String()),
	)
	return res, nil
}

// openEntries attempts entries for every due, unconsumed signal and returns
// the updated cash balance.
func (s *Simulator) openEntries(ctx context.Context, ledger *memory.PositionStore, pending []*pendingSignal, series *PriceSeries, params Params, clock time.Time, cash decimal.Decimal, res *Result) decimal.Decimal {
	one := decimal.NewFromInt(1)

	for _, p := range pending {
		if p.entered || p.sig.Timestamp.After(clock) {
			continue
		}

		if p.sig.Score < params.MinScore || p.sig.Sentiment < params.MinSentiment ||
			!params.allowsCatalyst(p.sig.CatalystType) {
			p.entered = true
			res.Stats.RejectedFilter++
			continue
		}

		bar, ok := series.BarAt(p.sig.Ticker, clock, params.TickResolution)
		if !ok {
			// No bar yet; the signal stays pending for the next tick.
			continue
		}
		price := bar.Close

		budget := cash.Mul(decimal.NewFromFloat(params.PositionSizePct))
		qty := budget.Div(price).IntPart()
		if qty <= 0 {
			p.entered = true
			res.Stats.RejectedCash++
			continue
		}

		if params.MaxDailyVolumePct > 0 {
			maxQty := decimal.NewFromInt(bar.Volume).
				Mul(decimal.NewFromFloat(params.MaxDailyVolumePct)).IntPart()
			if qty > maxQty {
				p.entered = true
				res.Stats.RejectedLiquidity++
				s.logger.DebugContext(ctx, "entry rejected by liquidity cap",
					slog.String("ticker", p.sig.Ticker),
					slog.Int64("quantity", qty),
					slog.Int64("max_quantity", maxQty),
				)
				continue
			}
		}

		cost := price.Mul(decimal.NewFromInt(qty))

		stop := price.Mul(one.Sub(decimal.NewFromFloat(params.StopLossPct))).Round(4)
		target := price.Mul(one.Add(decimal.NewFromFloat(params.TakeProfitPct))).Round(4)

		_, err := ledger.Open(ctx, domain.PositionSpec{
			Ticker:          p.sig.Ticker,
			Quantity:        qty,
			EntryPrice:      price,
			EntryTime:       clock,
			StopLossPrice:   stop,
			TakeProfitPrice: target,
			MaxHoldDuration: params.MaxHold,
			SourceSignalID:  p.sig.ID,
			StrategyTag:     p.sig.StrategyTag,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "simulated entry failed",
				slog.String("ticker", p.sig.Ticker),
				slog.String("error", err.Error()),
			)
			p.entered = true
			continue
		}

		p.entered = true
		res.Stats.EntriesOpened++
		cash = cash.Sub(cost)
	}
	return cash
}

// applyExits evaluates every open position at the current tick and returns
// the updated cash balance.
func (s *Simulator) applyExits(ctx context.Context, ledger *memory.PositionStore, series *PriceSeries, params Params, clock time.Time, cash decimal.Decimal, res *Result) decimal.Decimal {
	open, _ := ledger.ListOpen(ctx)
	for _, pos := range open {
		bar, ok := series.BarAt(pos.Ticker, clock, params.TickResolution)
		if !ok {
			res.Stats.BarGaps++
			s.logger.DebugContext(ctx, "missing price bar",
				slog.String("ticker", pos.Ticker),
				slog.Time("tick", clock),
			)
			continue
		}

		_ = ledger.UpdatePrice(ctx, pos.ID, bar.Close, clock)

		decision := rules.Evaluate(pos, bar.Close, clock)
		if !decision.Close {
			continue
		}

		exitPrice := bar.Close
		if params.FillAtThreshold {
			switch decision.Reason {
			case domain.ExitStopLoss:
				exitPrice = pos.StopLossPrice
			case domain.ExitTakeProfit:
				exitPrice = pos.TakeProfitPrice
			}
		}

		trade, err := ledger.Close(ctx, pos.ID, domain.CloseRequest{
			ExitPrice:  exitPrice,
			ExitTime:   clock,
			Reason:     decision.Reason,
			Commission: params.Commission,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "simulated close failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		cash = cash.Add(exitPrice.Mul(decimal.NewFromInt(trade.Quantity))).Sub(params.Commission)
	}
	return cash
}

// liquidate closes remaining open positions at their last observed price.
func (s *Simulator) liquidate(ctx context.Context, ledger *memory.PositionStore, series *PriceSeries, params Params, end time.Time, cash decimal.Decimal, res *Result) decimal.Decimal {
	open, _ := ledger.ListOpen(ctx)
	for _, pos := range open {
		exitPrice := pos.CurrentPrice
		if bar, ok := series.BarAt(pos.Ticker, end, params.TickResolution); ok {
			exitPrice = bar.Close
		}

		trade, err := ledger.Close(ctx, pos.ID, domain.CloseRequest{
			ExitPrice:  exitPrice,
			ExitTime:   end,
			Reason:     domain.ExitManual,
			Commission: params.Commission,
		})
		if err != nil {
			continue
		}
		res.Stats.EndLiquidations++
		cash = cash.Add(exitPrice.Mul(decimal.NewFromInt(trade.Quantity))).Sub(params.Commission)
	}
	return cash
}

func openValue(ctx context.Context, ledger *memory.PositionStore) decimal.Decimal {
	total := decimal.Zero
	open, _ := ledger.ListOpen(ctx)
	for _, pos := range open {
		total = total.Add(pos.MarketValue())
	}
	return total
}

func sortTradesByExit(trades []domain.ClosedTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ExitTime.Equal(trades[j].ExitTime) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].ExitTime.Before(trades[j].ExitTime)
	})
}
