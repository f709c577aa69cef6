package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Open
// positions and closed trades live in separate tables; Close moves a row
// between them in one transaction, so concurrent close attempts serialize on
// the row lock and exactly one wins.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, ticker, quantity, entry_price, entry_time, cost_basis,
	current_price, price_updated_at, unrealized_pnl,
	stop_loss_price, take_profit_price, max_hold_ns, source_signal_id, strategy_tag`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var maxHoldNs int64

	err := row.Scan(
		&p.ID, &p.Ticker, &p.Quantity, &p.EntryPrice, &p.EntryTime, &p.CostBasis,
		&p.CurrentPrice, &p.PriceUpdatedAt, &p.UnrealizedPnL,
		&p.StopLossPrice, &p.TakeProfitPrice, &maxHoldNs, &p.SourceSignalID, &p.StrategyTag,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.MaxHoldDuration = time.Duration(maxHoldNs)
	p.Status = domain.PositionStatusOpen
	return p, nil
}

// Open inserts a new open position built from spec.
func (s *PositionStore) Open(ctx context.Context, spec domain.PositionSpec) (domain.Position, error) {
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

	const query = `
		INSERT INTO positions (
			id, ticker, quantity, entry_price, entry_time, cost_basis,
			current_price, price_updated_at, unrealized_pnl,
			stop_loss_price, take_profit_price, max_hold_ns,
			source_signal_id, strategy_tag, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.Ticker, pos.Quantity, pos.EntryPrice, pos.EntryTime, pos.CostBasis,
		pos.CurrentPrice, pos.PriceUpdatedAt, pos.UnrealizedPnL,
		pos.StopLossPrice, pos.TakeProfitPrice, int64(pos.MaxHoldDuration),
		pos.SourceSignalID, pos.StrategyTag,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Position{}, domain.ErrDuplicateID
		}
		return domain.Position{}, fmt.Errorf("postgres: open position %s: %w", pos.ID, err)
	}
	return pos, nil
}

// UpdatePrice applies the quote only when asOf is newer than the stored
// update time. The guard lives in the WHERE clause, so stale and out-of-order
// updates fall through as no-ops without a read-modify-write race.
func (s *PositionStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, asOf time.Time) error {
	const query = `
		UPDATE positions SET
			current_price    = $2,
			price_updated_at = $3,
			unrealized_pnl   = ($2 - entry_price) * quantity,
			updated_at       = NOW()
		WHERE id = $1 AND price_updated_at < $3`

	tag, err := s.pool.Exec(ctx, query, id, price, asOf)
	if err != nil {
		return fmt.Errorf("postgres: update price for %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: stale timestamp, already closed, or unknown id. Only the
	// last one is an error.
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)
		    OR EXISTS(SELECT 1 FROM closed_trades WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check position %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// Close moves the position into closed_trades in a single transaction.
func (s *PositionStore) Close(ctx context.Context, id string, req domain.CloseRequest) (domain.ClosedTrade, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("postgres: begin close %s: %w", id, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1 FOR UPDATE`, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var closed bool
			if chkErr := s.pool.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM closed_trades WHERE id = $1)`, id,
			).Scan(&closed); chkErr != nil {
				return domain.ClosedTrade{}, fmt.Errorf("postgres: check closed %s: %w", id, chkErr)
			}
			if closed {
				return domain.ClosedTrade{}, domain.ErrAlreadyClosed
			}
			return domain.ClosedTrade{}, domain.ErrNotFound
		}
		return domain.ClosedTrade{}, fmt.Errorf("postgres: lock position %s: %w", id, err)
	}

	trade := domain.NewClosedTrade(pos, req.ExitPrice, req.ExitTime, req.Reason, req.Commission)

	const insert = `
		INSERT INTO closed_trades (
			id, ticker, quantity, entry_price, entry_time, cost_basis,
			stop_loss_price, take_profit_price, max_hold_ns,
			source_signal_id, strategy_tag,
			exit_price, exit_time, realized_pnl, realized_pnl_pct,
			hold_ns, exit_reason, commission
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14, $15,
			$16, $17, $18
		)`
	if _, err := tx.Exec(ctx, insert,
		trade.ID, trade.Ticker, trade.Quantity, trade.EntryPrice, trade.EntryTime, trade.CostBasis,
		trade.StopLossPrice, trade.TakeProfitPrice, int64(trade.MaxHoldDuration),
		trade.SourceSignalID, trade.StrategyTag,
		trade.ExitPrice, trade.ExitTime, trade.RealizedPnL, trade.RealizedPnLPct,
		int64(trade.HoldDuration), string(trade.ExitReason), trade.Commission,
	); err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("postgres: insert closed trade %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("postgres: delete open position %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("postgres: commit close %s: %w", id, err)
	}
	return trade, nil
}

// GetOpen retrieves a single open position by id.
func (s *PositionStore) GetOpen(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)

	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// ListOpen returns all open positions ordered by entry time.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions ORDER BY entry_time, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// ListClosed returns closed trades matching the filter, newest exit first.
func (s *PositionStore) ListClosed(ctx context.Context, f domain.ClosedFilter) ([]domain.ClosedTrade, error) {
	query := `
		SELECT id, ticker, quantity, entry_price, entry_time, cost_basis,
		       stop_loss_price, take_profit_price, max_hold_ns,
		       source_signal_id, strategy_tag,
		       exit_price, exit_time, realized_pnl, realized_pnl_pct,
		       hold_ns, exit_reason, commission
		FROM closed_trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Ticker != "" {
		query += fmt.Sprintf(" AND ticker = $%d", argIdx)
		args = append(args, f.Ticker)
		argIdx++
	}
	if f.StrategyTag != "" {
		query += fmt.Sprintf(" AND strategy_tag = $%d", argIdx)
		args = append(args, f.StrategyTag)
		argIdx++
	}
	if f.ClosedSince != nil {
		query += fmt.Sprintf(" AND exit_time >= $%d", argIdx)
		args = append(args, *f.ClosedSince)
		argIdx++
	}
	if f.ClosedUntil != nil {
		query += fmt.Sprintf(" AND exit_time <= $%d", argIdx)
		args = append(args, *f.ClosedUntil)
		argIdx++
	}

	query += " ORDER BY exit_time DESC, id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var maxHoldNs, holdNs int64
		var reason string

		if err := rows.Scan(
			&t.ID, &t.Ticker, &t.Quantity, &t.EntryPrice, &t.EntryTime, &t.CostBasis,
			&t.StopLossPrice, &t.TakeProfitPrice, &maxHoldNs,
			&t.SourceSignalID, &t.StrategyTag,
			&t.ExitPrice, &t.ExitTime, &t.RealizedPnL, &t.RealizedPnLPct,
			&holdNs, &reason, &t.Commission,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		t.MaxHoldDuration = time.Duration(maxHoldNs)
		t.HoldDuration = time.Duration(holdNs)
		t.ExitReason = domain.ExitReason(reason)
		t.Status = domain.PositionStatusClosed
		t.CurrentPrice = t.ExitPrice
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM positions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count open positions: %w", err)
	}
	return n, nil
}
