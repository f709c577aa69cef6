package marketdata

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
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubProvider struct {
	quote domain.Quote
	err   error
	calls int
}

func (p *stubProvider) GetPrice(context.Context, string) (domain.Quote, error) {
	p.calls++
	return p.quote, p.err
}

type mapCache struct {
	quotes map[string]domain.Quote
	getErr error
	setErr error
	writes int
}

func newMapCache() *mapCache {
	return &mapCache{quotes: map[string]domain.Quote{}}
}

func (c *mapCache) SetPrice(_ context.Context, ticker string, price decimal.Decimal, asOf time.Time) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.writes++
	c.quotes[ticker] = domain.Quote{Ticker: ticker, Price: price, AsOf: asOf}
	return nil
}

func (c *mapCache) GetPrice(_ context.Context, ticker string) (domain.Quote, error) {
	if c.getErr != nil {
		return domain.Quote{}, c.getErr
	}
	q, ok := c.quotes[ticker]
	if !ok {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	return q, nil
}

func TestCachedProviderServesFreshQuote(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	cache.quotes["ABCD"] = domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("10.00"),
		AsOf:   time.Now().UTC(),
	}
	upstream := &stubProvider{}
	p := NewCachedProvider(upstream, cache, time.Minute, discard)

	q, err := p.GetPrice(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("10.00")))
	assert.Zero(t, upstream.calls, "fresh cache hit must not reach upstream")
}

func TestCachedProviderRefetchesStaleQuote(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	cache.quotes["ABCD"] = domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("9.00"),
		AsOf:   time.Now().UTC().Add(-time.Hour),
	}
	upstream := &stubProvider{quote: domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("10.50"),
		AsOf:   time.Now().UTC(),
	}}
	p := NewCachedProvider(upstream, cache, time.Minute, discard)

	q, err := p.GetPrice(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, 1, upstream.calls)
	assert.True(t, cache.quotes["ABCD"].Price.Equal(decimal.RequireFromString("10.50")),
		"fetched quote must be written back")
}

func TestCachedProviderCacheFailureDegradesToUpstream(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	cache.getErr = fmt.Errorf("redis down")
	cache.setErr = fmt.Errorf("redis down")
	upstream := &stubProvider{quote: domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("10.50"),
		AsOf:   time.Now().UTC(),
	}}
	p := NewCachedProvider(upstream, cache, time.Minute, discard)

	q, err := p.GetPrice(context.Background(), "ABCD")
	require.NoError(t, err, "cache failures must not fail the call")
	assert.True(t, q.Price.Equal(decimal.RequireFromString("10.50")))
}

func TestCachedProviderPropagatesUpstreamError(t *testing.T) {
	t.Parallel()

	upstream := &stubProvider{err: fmt.Errorf("quote ABCD: %w", domain.ErrPriceUnavailable)}
	p := NewCachedProvider(upstream, newMapCache(), time.Minute, discard)

	_, err := p.GetPrice(context.Background(), "ABCD")
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestCachedProviderZeroMaxAgeAlwaysFetches(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	cache.quotes["ABCD"] = domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("9.00"),
		AsOf:   time.Now().UTC(),
	}
	upstream := &stubProvider{quote: domain.Quote{
		Ticker: "ABCD",
		Price:  decimal.RequireFromString("10.50"),
		AsOf:   time.Now().UTC(),
	}}
	p := NewCachedProvider(upstream, cache, 0, discard)

	q, err := p.GetPrice(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, 1, upstream.calls)
}
