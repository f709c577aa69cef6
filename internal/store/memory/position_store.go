// Package memory provides an in-memory PositionStore. The backtest simulator
// uses it as the position ledger for a run, and unit tests use it as the
// store fake. It honors the same contract as the durable store: serialized
// writes, snapshot reads, monotonic price updates, one close winner.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// PositionStore implements domain.PositionStore with a mutex-guarded map.
type PositionStore struct {
	mu     sync.RWMutex
	open   map[string]domain.Position
	closed map[string]domain.ClosedTrade
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		open:   make(map[string]domain.Position),
		closed: make(map[string]domain.ClosedTrade),
	}
}

// Open creates a position from spec.
func (s *PositionStore) Open(_ context.Context, spec domain.PositionSpec) (domain.Position, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	qty := decimal.NewFromInt(spec.Quantity)
	pos := domain.Position{
		ID:              id,
		Ticker:          spec.Ticker,
		Quantity:        spec.Quantity,
		EntryPrice:      spec.EntryPrice,
		EntryTime:       spec.EntryTime,
		CostBasis:       spec.EntryPrice.Mul(qty),
		CurrentPrice:    spec.EntryPrice,
		PriceUpdatedAt:  spec.EntryTime,
		UnrealizedPnL:   decimal.Zero,
		StopLossPrice:   spec.StopLossPrice,
		TakeProfitPrice: spec.TakeProfitPrice,
		MaxHoldDuration: spec.MaxHoldDuration,
		SourceSignalID:  spec.SourceSignalID,
		StrategyTag:     spec.StrategyTag,
		Status:          domain.PositionStatusOpen,
	}
	if err := pos.Validate(); err != nil {
		return domain.Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.open[id]; ok {
		return domain.Position{}, domain.ErrDuplicateID
	}
	if _, ok := s.closed[id]; ok {
		return domain.Position{}, domain.ErrDuplicateID
	}
	s.open[id] = pos
	return pos, nil
}

// UpdatePrice applies the quote only when asOf is newer than the stored
// update time. Stale updates and updates for closed ids are silent no-ops.
func (s *PositionStore) UpdatePrice(_ context.Context, id string, price decimal.Decimal, asOf time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.open[id]
	if !ok {
		if _, closed := s.closed[id]; closed {
			return nil
		}
		return domain.ErrNotFound
	}
	if !asOf.After(pos.PriceUpdatedAt) {
		return nil
	}

	pos.CurrentPrice = price
	pos.PriceUpdatedAt = asOf
	pos.UnrealizedPnL = price.Sub(pos.EntryPrice).Mul(decimal.NewFromInt(pos.Quantity))
	s.open[id] = pos
	return nil
}

// Close moves the position to the closed set; exactly one caller wins.
func (s *PositionStore) Close(_ context.Context, id string, req domain.CloseRequest) (domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.open[id]
	if !ok {
		if _, closed := s.closed[id]; closed {
			return domain.ClosedTrade{}, domain.ErrAlreadyClosed
		}
		return domain.ClosedTrade{}, domain.ErrNotFound
	}

	trade := domain.NewClosedTrade(pos, req.ExitPrice, req.ExitTime, req.Reason, req.Commission)
	delete(s.open, id)
	s.closed[id] = trade
	return trade, nil
}

// GetOpen returns the open position with the given id.
func (s *PositionStore) GetOpen(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.open[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

// ListOpen returns a snapshot of all open positions ordered by entry time.
func (s *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.open))
	for _, pos := range s.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out, nil
}

// ListClosed returns closed trades matching the filter, newest exit first.
func (s *PositionStore) ListClosed(_ context.Context, f domain.ClosedFilter) ([]domain.ClosedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ClosedTrade, 0, len(s.closed))
	for _, t := range s.closed {
		if f.Ticker != "" && t.Ticker != f.Ticker {
			continue
		}
		if f.StrategyTag != "" && t.StrategyTag != f.StrategyTag {
			continue
		}
		if f.ClosedSince != nil && t.ExitTime.Before(*f.ClosedSince) {
			continue
		}
		if f.ClosedUntil != nil && t.ExitTime.After(*f.ClosedUntil) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExitTime.Equal(out[j].ExitTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExitTime.After(out[j].ExitTime)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open), nil
}
