// Package marketdata provides price-provider composition helpers. The
// concrete upstream integrations live behind domain.PriceProvider; this
// package only adds caching on top.
package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// CachedProvider decorates a PriceProvider with a write-through quote cache.
// Fresh cached quotes are served without touching the upstream; fetched
// quotes are written back so other consumers (dashboards, risk checks) see
// the same view.
type CachedProvider struct {
	inner  domain.PriceProvider
	cache  domain.PriceCache
	maxAge time.Duration
	logger *slog.Logger
}

// NewCachedProvider wraps inner with the given cache. Quotes older than
// maxAge are refetched; maxAge <= 0 disables the freshness check and always
// asks upstream.
func NewCachedProvider(inner domain.PriceProvider, cache domain.PriceCache, maxAge time.Duration, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "cached_provider")),
	}
}

// GetPrice serves from cache when fresh, otherwise fetches upstream and
// writes the quote back. Cache failures degrade to upstream fetches; they
// never fail the call on their own.
func (p *CachedProvider) GetPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	if p.maxAge > 0 {
		q, err := p.cache.GetPrice(ctx, ticker)
		if err == nil && time.Since(q.AsOf) <= p.maxAge {
			return q, nil
		}
		if err != nil && !errors.Is(err, domain.ErrPriceUnavailable) {
			p.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := p.inner.GetPrice(ctx, ticker)
	if err != nil {
		return domain.Quote{}, err
	}

	if cacheErr := p.cache.SetPrice(ctx, ticker, q.Price, q.AsOf); cacheErr != nil {
		p.logger.WarnContext(ctx, "quote cache write failed",
			slog.String("ticker", ticker),
			slog.String("error", cacheErr.Error()),
		)
	}
	return q, nil
}
