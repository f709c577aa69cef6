package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/analytics"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/backtest"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/monitor"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/optimize"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/service"
)

// MonitorMode runs the live loop: a listener opening positions from signal
// bus events, and the periodic monitor enforcing exits. Both stop when ctx
// is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	svc := service.NewPositionService(
		deps.PositionStore,
		deps.Broker,
		deps.AuditStore,
		deps.EventBus,
		service.ExitParams{
			StopLossPct:   a.cfg.Exit.StopLossPct,
			TakeProfitPct: a.cfg.Exit.TakeProfitPct,
			MaxHold:       a.cfg.Exit.MaxHold.Duration,
		},
		service.RiskLimits{
			MaxOpenPositions: a.cfg.Risk.MaxOpenPositions,
			MaxNotional:      decimal.NewFromFloat(a.cfg.Risk.MaxNotional),
		},
		a.logger,
	)

	mon := monitor.New(
		deps.PositionStore,
		svc,
		deps.Prices,
		deps.Broker,
		deps.Calendar,
		deps.Notifier,
		monitor.Config{
			Interval:       a.cfg.Monitor.Interval.Duration,
			CallTimeout:    a.cfg.Monitor.CallTimeout.Duration,
			MaxRejections:  a.cfg.Monitor.MaxRejections,
			ExitCommission: decimal.NewFromFloat(a.cfg.Broker.Commission),
		},
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return a.listenForSignals(gctx, deps, svc) })
	return g.Wait()
}

// signalChannel carries inbound entry signals on the event bus.
const signalChannel = "signals"

// listenForSignals consumes entry signals from the bus and opens positions
// through the service. Malformed or rejected signals are logged and skipped;
// the listener only stops on context cancellation.
func (a *App) listenForSignals(ctx context.Context, deps *Dependencies, svc *service.PositionService) error {
	events, err := deps.EventBus.Subscribe(ctx, signalChannel)
	if err != nil {
		return fmt.Errorf("app: subscribe signals: %w", err)
	}
	a.logger.InfoContext(ctx, "signal listener started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return ctx.Err()
			}

			var sig domain.EntrySignal
			if err := json.Unmarshal(payload, &sig); err != nil {
				a.logger.Warn("malformed signal dropped", slog.String("error", err.Error()))
				continue
			}

			qty, err := a.entryQuantity(ctx, deps, sig.Ticker)
			if err != nil {
				a.logger.Warn("cannot size entry",
					slog.String("ticker", sig.Ticker),
					slog.String("error", err.Error()),
				)
				continue
			}

			if _, err := svc.OpenFromSignal(ctx, sig, qty); err != nil {
				a.logger.Warn("entry not opened",
					slog.String("ticker", sig.Ticker),
					slog.String("signal_id", sig.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// entryQuantity sizes an entry as an equal share of the notional budget
// across the allowed position slots, at the current quote.
func (a *App) entryQuantity(ctx context.Context, deps *Dependencies, ticker string) (int64, error) {
	quote, err := deps.Prices.GetPrice(ctx, ticker)
	if err != nil {
		return 0, err
	}

	slots := a.cfg.Risk.MaxOpenPositions
	if slots < 1 {
		slots = 1
	}
	budget := decimal.NewFromFloat(a.cfg.Risk.MaxNotional).Div(decimal.NewFromInt(int64(slots)))
	qty := budget.Div(quote.Price).IntPart()
	if qty <= 0 {
		return 0, fmt.Errorf("app: budget %s too small for %s at %s: %w",
			budget, ticker, quote.Price, domain.ErrInsufficientCash)
	}
	return qty, nil
}

// BacktestMode runs one simulation and writes the performance report to
// stdout, archiving run artifacts when S3 is enabled.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	signals, series, params, err := a.loadBacktestInputs()
	if err != nil {
		return err
	}

	sim := backtest.NewSimulator(a.logger)
	res, err := sim.Run(ctx, signals, series, params)
	if err != nil {
		return fmt.Errorf("app: backtest: %w", err)
	}

	rep := analytics.Analyze(res.Trades, analytics.Options{
		InitialEquity: params.InitialCash,
		EquityCurve:   res.EquityCurve,
		Signals:       signalsByID(signals),
	})

	a.logger.InfoContext(ctx, "backtest complete",
		slog.String("run_id", res.RunID),
		slog.Int("trades", len(res.Trades)),
		slog.String("final_equity", res.FinalEquity.String()),
	)

	if deps.Archiver != nil {
		if err := deps.Archiver.ArchiveRun(ctx, res, rep); err != nil {
			return fmt.Errorf("app: archive run: %w", err)
		}
	}
	return printJSON(rep)
}

// OptimizeMode sweeps the parameter space and writes the ranking to stdout.
func (a *App) OptimizeMode(ctx context.Context, deps *Dependencies) error {
	signals, series, base, err := a.loadBacktestInputs()
	if err != nil {
		return err
	}

	ocfg := a.cfg.Optimizer
	opt, err := optimize.New(
		optimize.Config{
			Samples:   ocfg.Samples,
			Seed:      ocfg.Seed,
			Workers:   ocfg.Workers,
			Objective: optimize.Objective(ocfg.Objective),
		},
		optimize.Space{
			StopLossPct:     optimize.Range{Min: ocfg.StopLossMin, Max: ocfg.StopLossMax},
			TakeProfitPct:   optimize.Range{Min: ocfg.TakeProfitMin, Max: ocfg.TakeProfitMax},
			PositionSizePct: optimize.Range{Min: ocfg.PositionSizeMin, Max: ocfg.PositionSizeMax},
			MaxHoldHours:    optimize.Range{Min: ocfg.MaxHoldHoursMin, Max: ocfg.MaxHoldHoursMax},
		},
		backtest.NewSimulator(a.logger),
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("app: optimizer: %w", err)
	}

	runs, err := opt.Run(ctx, signals, series, base)
	if err != nil {
		return fmt.Errorf("app: optimizer sweep: %w", err)
	}

	if deps.Archiver != nil && len(runs) > 0 {
		if err := deps.Archiver.ArchiveRun(ctx, runs[0].Result, runs[0].Report); err != nil {
			return fmt.Errorf("app: archive best run: %w", err)
		}
	}

	// Ranking summary: parameters and headline metrics, best first.
	type rankedOut struct {
		Rank          int      `json:"rank"`
		Score         float64  `json:"score"`
		StopLossPct   float64  `json:"stop_loss_pct"`
		TakeProfitPct float64  `json:"take_profit_pct"`
		PositionSize  float64  `json:"position_size_pct"`
		MaxHoldHours  float64  `json:"max_hold_hours"`
		TotalReturn   *float64 `json:"total_return_pct"`
		Sharpe        *float64 `json:"sharpe_ratio"`
		Trades        int      `json:"trades"`
	}
	out := make([]rankedOut, 0, len(runs))
	for _, r := range runs {
		out = append(out, rankedOut{
			Rank:          r.Rank,
			Score:         r.Score,
			StopLossPct:   r.Params.StopLossPct,
			TakeProfitPct: r.Params.TakeProfitPct,
			PositionSize:  r.Params.PositionSizePct,
			MaxHoldHours:  r.Params.MaxHold.Hours(),
			TotalReturn:   r.Report.TotalReturnPct,
			Sharpe:        r.Report.SharpeRatio,
			Trades:        r.Report.TotalTrades,
		})
	}
	return printJSON(out)
}

// ReportMode aggregates the closed trades in the durable store into a
// performance report on stdout. Total return is omitted: the live ledger has
// no single initial-equity anchor.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	trades, err := deps.PositionStore.ListClosed(ctx, domain.ClosedFilter{})
	if err != nil {
		return fmt.Errorf("app: list closed trades: %w", err)
	}

	rep := analytics.Analyze(trades, analytics.Options{})

	if deps.Archiver != nil && len(trades) > 0 {
		if _, err := deps.Archiver.ArchiveClosedTrades(ctx, time.Now().UTC()); err != nil {
			return fmt.Errorf("app: archive closed trades: %w", err)
		}
	}
	return printJSON(rep)
}

// loadBacktestInputs reads the signal and bar files and assembles simulation
// parameters from configuration.
func (a *App) loadBacktestInputs() ([]domain.EntrySignal, *backtest.PriceSeries, backtest.Params, error) {
	bcfg := a.cfg.Backtest

	signals, err := backtest.LoadSignals(bcfg.SignalsPath)
	if err != nil {
		return nil, nil, backtest.Params{}, fmt.Errorf("app: %w", err)
	}
	series, err := backtest.LoadBars(bcfg.BarsPath)
	if err != nil {
		return nil, nil, backtest.Params{}, fmt.Errorf("app: %w", err)
	}

	catalysts := make([]domain.CatalystType, 0, len(bcfg.CatalystTypes))
	for _, ct := range bcfg.CatalystTypes {
		catalysts = append(catalysts, domain.CatalystType(ct))
	}

	params := backtest.Params{
		InitialCash:       decimal.NewFromFloat(bcfg.InitialCash),
		PositionSizePct:   bcfg.PositionSizePct,
		MaxDailyVolumePct: bcfg.MaxDailyVolumePct,
		Commission:        decimal.NewFromFloat(bcfg.Commission),
		StopLossPct:       a.cfg.Exit.StopLossPct,
		TakeProfitPct:     a.cfg.Exit.TakeProfitPct,
		MaxHold:           a.cfg.Exit.MaxHold.Duration,
		TickResolution:    bcfg.TickResolution.Duration,
		MinScore:          bcfg.MinScore,
		MinSentiment:      bcfg.MinSentiment,
		CatalystTypes:     catalysts,
		FillAtThreshold:   bcfg.FillAtThreshold,
	}
	return signals, series, params, nil
}

func signalsByID(signals []domain.EntrySignal) map[string]domain.EntrySignal {
	m := make(map[string]domain.EntrySignal, len(signals))
	for _, s := range signals {
		if s.ID != "" {
			m[s.ID] = s
		}
	}
	return m
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
