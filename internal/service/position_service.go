// Package service orchestrates position lifecycle operations around the
// store: broker entries from signals, confirmed-fill closes, and the audit
// and event trail that goes with them.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// EventChannel is the bus channel carrying position lifecycle events.
const EventChannel = "positions"

// ExitParams derives stop, target, and hold limits for new positions.
type ExitParams struct {
	StopLossPct   float64
	TakeProfitPct float64
	MaxHold       time.Duration
}

// RiskLimits bounds what the service will open.
type RiskLimits struct {
	MaxOpenPositions int
	MaxNotional      decimal.Decimal
}

// PositionService opens positions from entry signals through the broker,
// closes them on confirmed fills, and records every transition.
type PositionService struct {
	store  domain.PositionStore
	broker domain.Broker
	audit  domain.AuditStore
	bus    domain.EventBus
	exits  ExitParams
	limits RiskLimits
	logger *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	store domain.PositionStore,
	broker domain.Broker,
	audit domain.AuditStore,
	bus domain.EventBus,
	exits ExitParams,
	limits RiskLimits,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		store:  store,
		broker: broker,
		audit:  audit,
		bus:    bus,
		exits:  exits,
		limits: limits,
		logger: logger.With(slog.String("component", "position_service")),
	}
}

// OpenFromSignal submits a broker entry for the signal and records the
// position once the fill is confirmed. The stored entry price is the fill
// price, not the signal price; stop and target derive from the fill.
func (s *PositionService) OpenFromSignal(ctx context.Context, sig domain.EntrySignal, qty int64) (domain.Position, error) {
	if s.limits.MaxOpenPositions > 0 {
		n, err := s.store.CountOpen(ctx)
		if err != nil {
			return domain.Position{}, fmt.Errorf("position_service: count open: %w", err)
		}
		if n >= s.limits.MaxOpenPositions {
			return domain.Position{}, fmt.Errorf("position_service: max open positions reached (%d/%d)",
				n, s.limits.MaxOpenPositions)
		}
	}

	fill, err := s.broker.SubmitEntry(ctx, sig.Ticker, qty)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: submit entry %s: %w", sig.Ticker, err)
	}

	notional := fill.Price.Mul(decimal.NewFromInt(qty))
	if s.limits.MaxNotional.IsPositive() && notional.GreaterThan(s.limits.MaxNotional) {
		s.logger.WarnContext(ctx, "fill notional exceeds limit, position recorded anyway",
			slog.String("ticker", sig.Ticker),
			slog.String("notional", notional.String()),
			slog.String("max", s.limits.MaxNotional.String()),
		)
	}

	one := decimal.NewFromInt(1)
	stop := fill.Price.Mul(one.Sub(decimal.NewFromFloat(s.exits.StopLossPct))).Round(2)
	target := fill.Price.Mul(one.Add(decimal.NewFromFloat(s.exits.TakeProfitPct))).Round(2)

	pos, err := s.store.Open(ctx, domain.PositionSpec{
		Ticker:          sig.Ticker,
		Quantity:        qty,
		EntryPrice:      fill.Price,
		EntryTime:       fill.Time.UTC(),
		StopLossPrice:   stop,
		TakeProfitPrice: target,
		MaxHoldDuration: s.exits.MaxHold,
		SourceSignalID:  sig.ID,
		StrategyTag:     sig.StrategyTag,
	})
	if err != nil {
		// The broker filled but the store refused: this must be loud, the
		// live book and the database now disagree.
		s.logger.ErrorContext(ctx, "fill confirmed but open failed",
			slog.String("ticker", sig.Ticker),
			slog.Int64("quantity", qty),
			slog.String("fill_price", fill.Price.String()),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("position_service: record open %s: %w", sig.Ticker, err)
	}

	s.record(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"quantity":    pos.Quantity,
		"entry_price": pos.EntryPrice.String(),
		"stop_loss":   pos.StopLossPrice.String(),
		"take_profit": pos.TakeProfitPrice.String(),
		"signal_id":   pos.SourceSignalID,
		"strategy":    pos.StrategyTag,
	})

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("ticker", pos.Ticker),
		slog.Int64("quantity", pos.Quantity),
		slog.String("entry_price", pos.EntryPrice.String()),
	)
	return pos, nil
}

// CloseConfirmed moves an already broker-confirmed exit into the store. The
// monitor calls this after Broker.ClosePosition succeeds; commission is
// whatever the broker reported for the exit.
func (s *PositionService) CloseConfirmed(ctx context.Context, id string, fill domain.Fill, reason domain.ExitReason, commission decimal.Decimal) (domain.ClosedTrade, error) {
	trade, err := s.store.Close(ctx, id, domain.CloseRequest{
		ExitPrice:  fill.Price,
		ExitTime:   fill.Time.UTC(),
		Reason:     reason,
		Commission: commission,
	})
	if err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("position_service: close %s: %w", id, err)
	}

	s.record(ctx, "position_closed", map[string]any{
		"position_id":  trade.ID,
		"ticker":       trade.Ticker,
		"exit_price":   trade.ExitPrice.String(),
		"exit_reason":  string(trade.ExitReason),
		"realized_pnl": trade.RealizedPnL.String(),
	})

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", trade.ID),
		slog.String("ticker", trade.Ticker),
		slog.String("exit_reason", string(trade.ExitReason)),
		slog.String("realized_pnl", trade.RealizedPnL.String()),
	)
	return trade, nil
}

// CloseManual unwinds a position on operator request: broker first, store
// after the confirmed fill, recorded with the manual exit reason.
func (s *PositionService) CloseManual(ctx context.Context, id string) (domain.ClosedTrade, error) {
	pos, err := s.store.GetOpen(ctx, id)
	if err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("position_service: get %s: %w", id, err)
	}

	fill, err := s.broker.ClosePosition(ctx, pos.Ticker, pos.Quantity)
	if err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("position_service: broker close %s: %w", id, err)
	}

	return s.CloseConfirmed(ctx, id, fill, domain.ExitManual, decimal.Zero)
}

// record writes the audit entry and publishes the bus event. Both are
// best-effort; failures are logged, never propagated, so a flaky audit sink
// cannot block trading.
func (s *PositionService) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{"event": event, "detail": detail})
		if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
