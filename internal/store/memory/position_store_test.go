package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

func testSpec() domain.PositionSpec {
	return domain.PositionSpec{
		Ticker:          "AAPL",
		Quantity:        100,
		EntryPrice:      decimal.RequireFromString("10.00"),
		EntryTime:       time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		StopLossPrice:   decimal.RequireFromString("9.50"),
		TakeProfitPrice: decimal.RequireFromString("11.00"),
		MaxHoldDuration: 24 * time.Hour,
		SourceSignalID:  "sig-1",
		StrategyTag:     "catalyst_momo",
	}
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	pos, err := s.Open(ctx, testSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.True(t, pos.CostBasis.Equal(decimal.RequireFromString("1000.00")))

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, pos.ID, open[0].ID)
	assert.Equal(t, "AAPL", open[0].Ticker)
	assert.Equal(t, int64(100), open[0].Quantity)
	assert.Equal(t, "sig-1", open[0].SourceSignalID)
}

func TestOpenDuplicateID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	spec := testSpec()
	spec.ID = "fixed-id"
	_, err := s.Open(ctx, spec)
	require.NoError(t, err)

	_, err = s.Open(ctx, spec)
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestOpenValidatesInvariants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	spec := testSpec()
	spec.Quantity = 0
	_, err := s.Open(ctx, spec)
	assert.Error(t, err)

	spec = testSpec()
	spec.StopLossPrice = decimal.RequireFromString("10.50") // above entry
	_, err = s.Open(ctx, spec)
	assert.Error(t, err)
}

func TestUpdatePriceStaleIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	pos, err := s.Open(ctx, testSpec())
	require.NoError(t, err)

	newer := pos.EntryTime.Add(time.Minute)
	require.NoError(t, s.UpdatePrice(ctx, pos.ID, decimal.RequireFromString("10.40"), newer))

	// Older quote must change nothing.
	require.NoError(t, s.UpdatePrice(ctx, pos.ID, decimal.RequireFromString("9.00"), pos.EntryTime))

	got, err := s.GetOpen(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("10.40")))
	assert.Equal(t, newer, got.PriceUpdatedAt)
	assert.True(t, got.UnrealizedPnL.Equal(decimal.RequireFromString("40.00")))
}

func TestUpdatePriceClosedIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	pos, err := s.Open(ctx, testSpec())
	require.NoError(t, err)

	_, err = s.Close(ctx, pos.ID, domain.CloseRequest{
		ExitPrice: decimal.RequireFromString("9.40"),
		ExitTime:  pos.EntryTime.Add(time.Hour),
		Reason:    domain.ExitStopLoss,
	})
	require.NoError(t, err)

	// A late quote racing the close must not error.
	assert.NoError(t, s.UpdatePrice(ctx, pos.ID, decimal.RequireFromString("9.30"), pos.EntryTime.Add(2*time.Hour)))
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	pos, err := s.Open(ctx, testSpec())
	require.NoError(t, err)

	req := domain.CloseRequest{
		ExitPrice: decimal.RequireFromString("9.40"),
		ExitTime:  pos.EntryTime.Add(3 * time.Hour),
		Reason:    domain.ExitStopLoss,
	}

	trade, err := s.Close(ctx, pos.ID, req)
	require.NoError(t, err)
	assert.True(t, trade.RealizedPnL.Equal(decimal.RequireFromString("-60.00")))
	assert.Equal(t, domain.ExitStopLoss, trade.ExitReason)

	_, err = s.Close(ctx, pos.ID, req)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	closed, err := s.ListClosed(ctx, domain.ClosedFilter{})
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func TestCloseNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	_, err := s.Close(ctx, "missing", domain.CloseRequest{
		ExitPrice: decimal.RequireFromString("1.00"),
		ExitTime:  time.Now().UTC(),
		Reason:    domain.ExitManual,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCloseOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	pos, err := s.Open(ctx, testSpec())
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Close(ctx, pos.ID, domain.CloseRequest{
				ExitPrice: decimal.RequireFromString("11.10"),
				ExitTime:  pos.EntryTime.Add(time.Hour),
				Reason:    domain.ExitTakeProfit,
			})
			if err == nil {
				wins <- struct{}{}
			} else {
				assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	assert.Equal(t, 1, winners)

	closed, err := s.ListClosed(ctx, domain.ClosedFilter{})
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func TestListClosedFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPositionStore()

	for i, ticker := range []string{"AAPL", "MSFT", "AAPL"} {
		spec := testSpec()
		spec.Ticker = ticker
		pos, err := s.Open(ctx, spec)
		require.NoError(t, err)
		_, err = s.Close(ctx, pos.ID, domain.CloseRequest{
			ExitPrice: decimal.RequireFromString("11.10"),
			ExitTime:  pos.EntryTime.Add(time.Duration(i+1) * time.Hour),
			Reason:    domain.ExitTakeProfit,
		})
		require.NoError(t, err)
	}

	aapl, err := s.ListClosed(ctx, domain.ClosedFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, aapl, 2)

	since := testSpec().EntryTime.Add(150 * time.Minute)
	late, err := s.ListClosed(ctx, domain.ClosedFilter{ClosedSince: &since})
	require.NoError(t, err)
	assert.Len(t, late, 1)

	limited, err := s.ListClosed(ctx, domain.ClosedFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	// Newest exit first.
	assert.Equal(t, testSpec().EntryTime.Add(3*time.Hour), limited[0].ExitTime)
}
