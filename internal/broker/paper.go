// Package broker holds execution backends. Paper is the only backend today;
// a real brokerage adapter would satisfy the same domain.Broker interface.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// Paper simulates execution by filling every order at the provider's current
// quote. No quote means no fill: the order is rejected, same as a venue
// rejecting on a halted ticker.
type Paper struct {
	provider domain.PriceProvider
	logger   *slog.Logger
}

// NewPaper creates a paper broker quoting fills from provider.
func NewPaper(provider domain.PriceProvider, logger *slog.Logger) *Paper {
	return &Paper{
		provider: provider,
		logger:   logger.With(slog.String("component", "paper_broker")),
	}
}

// SubmitEntry fills an entry order at the current quote.
func (b *Paper) SubmitEntry(ctx context.Context, ticker string, qty int64) (domain.Fill, error) {
	return b.fill(ctx, "entry", ticker, qty)
}

// ClosePosition fills an exit order at the current quote.
func (b *Paper) ClosePosition(ctx context.Context, ticker string, qty int64) (domain.Fill, error) {
	return b.fill(ctx, "close", ticker, qty)
}

func (b *Paper) fill(ctx context.Context, side, ticker string, qty int64) (domain.Fill, error) {
	if qty <= 0 {
		return domain.Fill{}, fmt.Errorf("broker: %s %s: quantity must be positive, got %d: %w",
			side, ticker, qty, domain.ErrBrokerRejected)
	}

	quote, err := b.provider.GetPrice(ctx, ticker)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("broker: %s %s: no quote: %w", side, ticker, domain.ErrBrokerRejected)
	}

	b.logger.DebugContext(ctx, "paper fill",
		slog.String("side", side),
		slog.String("ticker", ticker),
		slog.Int64("quantity", qty),
		slog.String("price", quote.Price.String()),
	)
	return domain.Fill{Price: quote.Price, Time: time.Now().UTC()}, nil
}
