// Package rules holds the exit-rule evaluator shared by the live monitor and
// the backtest simulator. It is deterministic and side-effect free so that
// both drivers apply identical close logic and backtests stay reproducible.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// Decision is the outcome of evaluating one position against one tick.
type Decision struct {
	Close  bool
	Reason domain.ExitReason
}

// none is the no-action decision.
var none = Decision{}

// Evaluate applies the exit rules to an open position at the observed price
// and instant. Priority order: stop loss, take profit, max hold time. When a
// gapped tick breaches both thresholds at once the stop loss wins, since the
// conservative reading of an ambiguous tick is the losing one.
func Evaluate(pos domain.Position, price decimal.Decimal, now time.Time) Decision {
	if price.LessThanOrEqual(pos.StopLossPrice) {
		return Decision{Close: true, Reason: domain.ExitStopLoss}
	}
	if price.GreaterThanOrEqual(pos.TakeProfitPrice) {
		return Decision{Close: true, Reason: domain.ExitTakeProfit}
	}
	if pos.MaxHoldDuration > 0 && now.Sub(pos.EntryTime) >= pos.MaxHoldDuration {
		return Decision{Close: true, Reason: domain.ExitMaxHoldTime}
	}
	return none
}
