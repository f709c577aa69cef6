package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/service"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/store/memory"
)

type fakeProvider struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
	asOf   time.Time
}

func (f *fakeProvider) GetPrice(_ context.Context, ticker string) (domain.Quote, error) {
	f.calls++
	if err, ok := f.errs[ticker]; ok {
		return domain.Quote{}, err
	}
	p, ok := f.prices[ticker]
	if !ok {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	return domain.Quote{Ticker: ticker, Price: p, AsOf: f.asOf}, nil
}

type fakeBroker struct {
	rejectCloses int // reject this many closes before filling
	closeCalls   int
	fillTime     time.Time
}

func (f *fakeBroker) SubmitEntry(_ context.Context, _ string, _ int64) (domain.Fill, error) {
	return domain.Fill{}, fmt.Errorf("%w: entries not expected", domain.ErrBrokerRejected)
}

func (f *fakeBroker) ClosePosition(_ context.Context, _ string, _ int64) (domain.Fill, error) {
	f.closeCalls++
	if f.closeCalls <= f.rejectCloses {
		return domain.Fill{}, fmt.Errorf("%w: insufficient liquidity", domain.ErrBrokerRejected)
	}
	return domain.Fill{Price: decimal.RequireFromString("9.38"), Time: f.fillTime}, nil
}

type fakeAlerter struct {
	events []string
}

func (f *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

type closedCalendar struct{}

func (closedCalendar) IsOpen(time.Time) bool { return false }

type openCalendar struct{}

func (openCalendar) IsOpen(time.Time) bool { return true }

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestPosition(t *testing.T, store *memory.PositionStore, ticker string) domain.Position {
	t.Helper()
	pos, err := store.Open(context.Background(), domain.PositionSpec{
		Ticker:          ticker,
		Quantity:        100,
		EntryPrice:      decimal.RequireFromString("10.00"),
		EntryTime:       time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		StopLossPrice:   decimal.RequireFromString("9.50"),
		TakeProfitPrice: decimal.RequireFromString("11.00"),
		MaxHoldDuration: 24 * time.Hour,
	})
	require.NoError(t, err)
	return pos
}

func newTestMonitor(store *memory.PositionStore, provider domain.PriceProvider, broker domain.Broker, cal domain.MarketCalendar, alerter Alerter, now time.Time) *Monitor {
	svc := service.NewPositionService(store, broker, nil, nil,
		service.ExitParams{}, service.RiskLimits{}, discard)
	m := New(store, svc, provider, broker, cal, alerter, Config{MaxRejections: 3}, discard)
	m.now = func() time.Time { return now }
	return m
}

func TestCycleMarketClosedMakesNoCalls(t *testing.T) {
	t.Parallel()

	store := memory.NewPositionStore()
	openTestPosition(t, store, "AAPL")
	provider := &fakeProvider{}
	broker := &fakeBroker{}

	m := newTestMonitor(store, provider, broker, closedCalendar{}, nil, time.Now())
	m.Cycle(context.Background())

	assert.Zero(t, provider.calls)
	assert.Zero(t, broker.closeCalls)
}

func TestCycleClosesOnConfirmedFill(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	store := memory.NewPositionStore()
	pos := openTestPosition(t, store, "AAPL")

	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("9.40")},
		asOf:   now,
	}
	broker := &fakeBroker{fillTime: now}

	m := newTestMonitor(store, provider, broker, openCalendar{}, nil, now)
	m.Cycle(context.Background())

	_, err := store.GetOpen(context.Background(), pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	closed, err := store.ListClosed(context.Background(), domain.ClosedFilter{})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitStopLoss, closed[0].ExitReason)
	// Fill price from the broker, not the observed quote.
	assert.True(t, closed[0].ExitPrice.Equal(decimal.RequireFromString("9.38")))
}

func TestCyclePriceErrorSkipsTickerOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	store := memory.NewPositionStore()
	bad := openTestPosition(t, store, "MSFT")
	openTestPosition(t, store, "AAPL")

	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("11.10")},
		errs:   map[string]error{"MSFT": domain.ErrPriceUnavailable},
		asOf:   now,
	}
	broker := &fakeBroker{fillTime: now}

	m := newTestMonitor(store, provider, broker, openCalendar{}, nil, now)
	m.Cycle(context.Background())

	// MSFT stays open and untouched; AAPL closed on take profit.
	_, err := store.GetOpen(context.Background(), bad.ID)
	assert.NoError(t, err)

	closed, err := store.ListClosed(context.Background(), domain.ClosedFilter{})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "AAPL", closed[0].Ticker)
	assert.Equal(t, domain.ExitTakeProfit, closed[0].ExitReason)
}

func TestCycleBrokerRejectionEscalates(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	store := memory.NewPositionStore()
	pos := openTestPosition(t, store, "AAPL")

	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("9.40")},
		asOf:   now,
	}
	broker := &fakeBroker{rejectCloses: 100, fillTime: now}
	alerter := &fakeAlerter{}

	m := newTestMonitor(store, provider, broker, openCalendar{}, alerter, now)

	// Two rejected cycles: position stays open, no alert yet.
	m.Cycle(context.Background())
	m.Cycle(context.Background())
	_, err := store.GetOpen(context.Background(), pos.ID)
	assert.NoError(t, err)
	assert.Empty(t, alerter.events)

	// Third consecutive rejection crosses the threshold.
	m.Cycle(context.Background())
	require.Len(t, alerter.events, 1)
	assert.Equal(t, "position_stuck", alerter.events[0])

	// Still open: the store never closes without a confirmed fill.
	_, err = store.GetOpen(context.Background(), pos.ID)
	assert.NoError(t, err)
}

func TestCycleRejectionCounterResetsOnFill(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	store := memory.NewPositionStore()
	openTestPosition(t, store, "AAPL")

	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("9.40")},
		asOf:   now,
	}
	// Two rejections, then fills: the alert threshold of 3 is never reached.
	broker := &fakeBroker{rejectCloses: 2, fillTime: now}
	alerter := &fakeAlerter{}

	m := newTestMonitor(store, provider, broker, openCalendar{}, alerter, now)
	m.Cycle(context.Background())
	m.Cycle(context.Background())
	m.Cycle(context.Background())

	assert.Empty(t, alerter.events)
	closed, err := store.ListClosed(context.Background(), domain.ClosedFilter{})
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func TestCycleMaxHoldCloses(t *testing.T) {
	t.Parallel()

	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	now := entry.Add(25 * time.Hour)
	store := memory.NewPositionStore()
	openTestPosition(t, store, "AAPL")

	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("10.10")},
		asOf:   now,
	}
	broker := &fakeBroker{fillTime: now}

	m := newTestMonitor(store, provider, broker, openCalendar{}, nil, now)
	m.Cycle(context.Background())

	closed, err := store.ListClosed(context.Background(), domain.ClosedFilter{})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitMaxHoldTime, closed[0].ExitReason)
}
