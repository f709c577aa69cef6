package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV price bar for a ticker at a given resolution.
type Bar struct {
	Ticker    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}
