package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PositionSpec describes a position to open. ID is optional; the store
// generates one when it is empty. Open fails with ErrDuplicateID when a
// caller-supplied ID collides with an existing record.
type PositionSpec struct {
	ID              string
	Ticker          string
	Quantity        int64
	EntryPrice      decimal.Decimal
	EntryTime       time.Time
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	MaxHoldDuration time.Duration
	SourceSignalID  string
	StrategyTag     string
}

// CloseRequest carries the confirmed exit fill for a position close.
type CloseRequest struct {
	ExitPrice  decimal.Decimal
	ExitTime   time.Time
	Reason     ExitReason
	Commission decimal.Decimal
}

// ClosedFilter narrows ListClosed results. Zero values mean "no filter".
type ClosedFilter struct {
	Ticker      string
	StrategyTag string
	ClosedSince *time.Time
	ClosedUntil *time.Time
	Limit       int
}

// PositionStore is the concurrency-safe repository of open and closed
// positions. Every mutating call is durable before it returns. Concurrent
// Close calls on the same id serialize with exactly one winner; the losers
// receive ErrAlreadyClosed.
type PositionStore interface {
	// Open creates a position from spec and returns the stored record.
	Open(ctx context.Context, spec PositionSpec) (Position, error)

	// UpdatePrice applies price to the position only when asOf is newer than
	// the stored update time. Stale or out-of-order updates, and updates for
	// ids that have already closed, are silent no-ops.
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal, asOf time.Time) error

	// Close atomically moves the position to the closed set and returns the
	// resulting trade record. ErrNotFound when the id never existed,
	// ErrAlreadyClosed when another caller won the close race.
	Close(ctx context.Context, id string, req CloseRequest) (ClosedTrade, error)

	// GetOpen returns the open position with the given id.
	GetOpen(ctx context.Context, id string) (Position, error)

	// ListOpen returns a consistent snapshot of all open positions.
	ListOpen(ctx context.Context) ([]Position, error)

	// ListClosed returns closed trades matching the filter, newest first.
	ListClosed(ctx context.Context, f ClosedFilter) ([]ClosedTrade, error)

	// CountOpen returns the number of open positions.
	CountOpen(ctx context.Context) (int, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of lifecycle events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
