// Package monitor runs the live position control loop: poll prices, apply the
// exit rules, and unwind triggered positions through the broker. One periodic
// loop covers every open position; there is no goroutine per position.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/rules"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/service"
)

// Alerter delivers operator alerts. notify.Notifier satisfies this.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the monitor loop tunables.
type Config struct {
	Interval       time.Duration // polling cadence, default 60s
	CallTimeout    time.Duration // bound on each external call, default 10s
	MaxRejections  int           // consecutive broker rejections before escalating
	ExitCommission decimal.Decimal
}

// Monitor is the single periodic live loop. It sleeps through closed market
// hours without making any external calls, and treats per-ticker failures as
// skip-this-cycle rather than retry-inline.
type Monitor struct {
	store    domain.PositionStore
	svc      *service.PositionService
	prices   domain.PriceProvider
	broker   domain.Broker
	calendar domain.MarketCalendar
	alerter  Alerter
	cfg      Config
	logger   *slog.Logger

	// consecutive broker rejections and price failures, keyed by position id.
	// Only the loop goroutine touches these.
	rejections    map[string]int
	priceFailures map[string]int

	now func() time.Time
}

// New creates a Monitor. Zero config fields get defaults: 60s interval, 10s
// call timeout, 3 rejections before escalation.
func New(
	store domain.PositionStore,
	svc *service.PositionService,
	prices domain.PriceProvider,
	broker domain.Broker,
	cal domain.MarketCalendar,
	alerter Alerter,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxRejections <= 0 {
		cfg.MaxRejections = 3
	}
	return &Monitor{
		store:         store,
		svc:           svc,
		prices:        prices,
		broker:        broker,
		calendar:      cal,
		alerter:       alerter,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "monitor")),
		rejections:    make(map[string]int),
		priceFailures: make(map[string]int),
		now:           time.Now,
	}
}

// Run drives the loop until ctx is cancelled. Cancellation is graceful: an
// in-flight cycle always finishes (its store writes run on an uncancellable
// context) before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("max_rejections", m.cfg.MaxRejections),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Cycle(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Cycle(context.WithoutCancel(ctx))
		}
	}
}

// Cycle runs one monitoring pass. Exported so admin tooling and tests can
// drive the loop directly.
func (m *Monitor) Cycle(ctx context.Context) {
	now := m.now().UTC()

	if !m.calendar.IsOpen(now) {
		m.logger.DebugContext(ctx, "market closed, skipping cycle")
		return
	}

	open, err := m.store.ListOpen(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "list open positions failed",
			slog.String("error", err.Error()),
		)
		return
	}

	var checked, closed, skipped int
	for _, pos := range open {
		switch m.check(ctx, pos, now) {
		case checkClosed:
			closed++
		case checkSkipped:
			skipped++
		}
		checked++
	}

	if checked > 0 {
		m.logger.InfoContext(ctx, "monitor cycle complete",
			slog.Int("checked", checked),
			slog.Int("closed", closed),
			slog.Int("skipped", skipped),
		)
	}
}

type checkResult int

const (
	checkHeld checkResult = iota
	checkClosed
	checkSkipped
)

// check evaluates one position: refresh the price, apply the exit rules, and
// unwind through the broker when a rule fires. The store flips to closed only
// after the broker confirms the fill.
func (m *Monitor) check(ctx context.Context, pos domain.Position, now time.Time) checkResult {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	quote, err := m.prices.GetPrice(callCtx, pos.Ticker)
	cancel()
	if err != nil {
		m.priceFailures[pos.ID]++
		m.logger.WarnContext(ctx, "price fetch failed, skipping position this cycle",
			slog.String("position_id", pos.ID),
			slog.String("ticker", pos.Ticker),
			slog.Int("consecutive_failures", m.priceFailures[pos.ID]),
			slog.String("error", err.Error()),
		)
		return checkSkipped
	}
	delete(m.priceFailures, pos.ID)

	if err := m.store.UpdatePrice(ctx, pos.ID, quote.Price, quote.AsOf); err != nil {
		// A lost price write corrupts unrealized P&L silently; say so loudly
		// but keep evaluating with the fresh quote.
		m.logger.ErrorContext(ctx, "price update write failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	decision := rules.Evaluate(pos, quote.Price, now)
	if !decision.Close {
		return checkHeld
	}

	callCtx, cancel = context.WithTimeout(ctx, m.cfg.CallTimeout)
	fill, err := m.broker.ClosePosition(callCtx, pos.Ticker, pos.Quantity)
	cancel()
	if err != nil {
		m.rejections[pos.ID]++
		count := m.rejections[pos.ID]
		m.logger.WarnContext(ctx, "broker close rejected, position stays open",
			slog.String("position_id", pos.ID),
			slog.String("ticker", pos.Ticker),
			slog.String("reason", string(decision.Reason)),
			slog.Int("consecutive_rejections", count),
			slog.String("error", err.Error()),
		)
		if count == m.cfg.MaxRejections && m.alerter != nil {
			msg := fmt.Sprintf(
				"position %s (%s x%d) hit %s but the broker rejected the close %d times in a row: %v",
				pos.ID, pos.Ticker, pos.Quantity, decision.Reason, count, err,
			)
			if alertErr := m.alerter.Notify(ctx, "position_stuck", "Stuck position", msg); alertErr != nil {
				m.logger.ErrorContext(ctx, "stuck position alert failed",
					slog.String("position_id", pos.ID),
					slog.String("error", alertErr.Error()),
				)
			}
		}
		return checkSkipped
	}
	delete(m.rejections, pos.ID)

	_, err = m.svc.CloseConfirmed(ctx, pos.ID, fill, decision.Reason, m.cfg.ExitCommission)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClosed) {
			// Lost a race with a manual close; the broker fill was the same
			// unwind, nothing to repair.
			m.logger.DebugContext(ctx, "position closed concurrently",
				slog.String("position_id", pos.ID),
			)
			return checkHeld
		}
		// The broker filled but the store did not record it. This is the
		// most damaging failure mode; escalate immediately.
		m.logger.ErrorContext(ctx, "broker fill confirmed but close write failed",
			slog.String("position_id", pos.ID),
			slog.String("fill_price", fill.Price.String()),
			slog.String("error", err.Error()),
		)
		if m.alerter != nil {
			msg := fmt.Sprintf("position %s filled at %s but the close was not persisted: %v",
				pos.ID, fill.Price, err)
			_ = m.alerter.Notify(ctx, "storage_failure", "Close event lost", msg)
		}
		return checkSkipped
	}
	return checkClosed
}
