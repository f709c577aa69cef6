package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each ticker is
// stored at key "quote:{ticker}" with fields "price" and "ts" (Unix
// nanoseconds). SetPrice keeps only the newest timestamp, mirroring the
// monotonic guarantee of the position store.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func quoteKey(ticker string) string {
	return "quote:" + ticker
}

// setIfNewer updates the quote hash only when the incoming timestamp is newer
// than the stored one. KEYS[1] = quote key, ARGV[1] = price, ARGV[2] = ts.
var setIfNewer = redis.NewScript(`
	local stored = redis.call('HGET', KEYS[1], 'ts')
	if stored and tonumber(stored) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'price', ARGV[1], 'ts', ARGV[2])
	return 1
`)

// SetPrice stores the quote for a ticker unless a newer one is already cached.
func (pc *PriceCache) SetPrice(ctx context.Context, ticker string, price decimal.Decimal, asOf time.Time) error {
	err := setIfNewer.Run(ctx, pc.rdb,
		[]string{quoteKey(ticker)},
		price.String(),
		strconv.FormatInt(asOf.UnixNano(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", ticker, err)
	}
	return nil
}

// GetPrice returns the cached quote for a ticker. A cache miss surfaces as
// domain.ErrPriceUnavailable so callers fall through to the provider.
func (pc *PriceCache) GetPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(ticker)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Quote{}, domain.ErrPriceUnavailable
		}
		return domain.Quote{}, fmt.Errorf("redis: get price %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse cached price %s: %w", ticker, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse cached timestamp %s: %w", ticker, err)
	}

	return domain.Quote{
		Ticker: ticker,
		Price:  price,
		AsOf:   time.Unix(0, tsNano).UTC(),
	}, nil
}
