package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation for a ticker.
type Quote struct {
	Ticker string
	Price  decimal.Decimal
	AsOf   time.Time
}

// PriceProvider fetches current prices. Implementations must be time-bounded;
// a provider that cannot produce a quote returns an error wrapping
// ErrPriceUnavailable.
type PriceProvider interface {
	GetPrice(ctx context.Context, ticker string) (Quote, error)
}

// Fill is a confirmed broker execution.
type Fill struct {
	Price decimal.Decimal
	Time  time.Time
}

// Broker submits and unwinds orders. Rejections are returned as errors
// wrapping ErrBrokerRejected with the rejection reason in the message; the
// caller decides whether to retry.
type Broker interface {
	SubmitEntry(ctx context.Context, ticker string, qty int64) (Fill, error)
	ClosePosition(ctx context.Context, ticker string, qty int64) (Fill, error)
}

// MarketCalendar answers whether the market is accepting orders at a given
// instant.
type MarketCalendar interface {
	IsOpen(now time.Time) bool
}

// PriceCache stores the latest observed price per ticker. SetPrice keeps the
// newest timestamp; readers treat a miss as "unknown", not an error.
type PriceCache interface {
	SetPrice(ctx context.Context, ticker string, price decimal.Decimal, asOf time.Time) error
	GetPrice(ctx context.Context, ticker string) (Quote, error)
}

// EventBus publishes position lifecycle events to interested consumers
// (alerting, dashboards). Delivery is best-effort; publishers log and move on.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads a single object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
