package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// ExitReason is the closed set of conditions that terminate a position.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitMaxHoldTime ExitReason = "max_hold_time"
	ExitManual      ExitReason = "manual"
)

// Valid reports whether r is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitStopLoss, ExitTakeProfit, ExitMaxHoldTime, ExitManual:
		return true
	}
	return false
}

// Position represents an open long holding, simulated or live. The canonical
// copy lives in the PositionStore; everything else works on value snapshots.
type Position struct {
	ID              string
	Ticker          string
	Quantity        int64
	EntryPrice      decimal.Decimal
	EntryTime       time.Time
	CostBasis       decimal.Decimal
	CurrentPrice    decimal.Decimal
	PriceUpdatedAt  time.Time
	UnrealizedPnL   decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	MaxHoldDuration time.Duration
	SourceSignalID  string
	StrategyTag     string
	Status          PositionStatus
}

// Validate checks the position invariants: positive quantity and entry price,
// and stop < entry < target.
func (p Position) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("position: ticker must not be empty")
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: quantity must be positive, got %d", p.Ticker, p.Quantity)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("position %s: entry price must be positive, got %s", p.Ticker, p.EntryPrice)
	}
	if p.StopLossPrice.GreaterThanOrEqual(p.EntryPrice) {
		return fmt.Errorf("position %s: stop loss %s must be below entry %s",
			p.Ticker, p.StopLossPrice, p.EntryPrice)
	}
	if p.TakeProfitPrice.LessThanOrEqual(p.EntryPrice) {
		return fmt.Errorf("position %s: take profit %s must be above entry %s",
			p.Ticker, p.TakeProfitPrice, p.EntryPrice)
	}
	return nil
}

// MarketValue returns quantity * current price.
func (p Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// ClosedTrade is the immutable historical record of a finished position.
type ClosedTrade struct {
	Position

	ExitPrice      decimal.Decimal
	ExitTime       time.Time
	RealizedPnL    decimal.Decimal
	RealizedPnLPct decimal.Decimal
	HoldDuration   time.Duration
	ExitReason     ExitReason
	Commission     decimal.Decimal
}

// NewClosedTrade derives the immutable trade record from an open position and
// the exit fill. Realized PnL is (exit - entry) * quantity - commission; the
// percentage is relative to cost basis.
func NewClosedTrade(p Position, exitPrice decimal.Decimal, exitTime time.Time, reason ExitReason, commission decimal.Decimal) ClosedTrade {
	qty := decimal.NewFromInt(p.Quantity)
	pnl := exitPrice.Sub(p.EntryPrice).Mul(qty).Sub(commission)

	var pnlPct decimal.Decimal
	if p.CostBasis.IsPositive() {
		pnlPct = pnl.Div(p.CostBasis).Mul(decimal.NewFromInt(100))
	}

	p.Status = PositionStatusClosed
	p.CurrentPrice = exitPrice
	p.UnrealizedPnL = decimal.Zero

	return ClosedTrade{
		Position:       p,
		ExitPrice:      exitPrice,
		ExitTime:       exitTime,
		RealizedPnL:    pnl,
		RealizedPnLPct: pnlPct,
		HoldDuration:   exitTime.Sub(p.EntryTime),
		ExitReason:     reason,
		Commission:     commission,
	}
}
