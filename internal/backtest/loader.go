package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// signalRecord is the on-disk signal format.
type signalRecord struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	Score        float64   `json:"score"`
	Sentiment    float64   `json:"sentiment"`
	CatalystType string    `json:"catalyst_type"`
	StrategyTag  string    `json:"strategy_tag"`
	Timestamp    time.Time `json:"timestamp"`
}

// barRecord is the on-disk bar format. Prices decode from JSON numbers or
// strings.
type barRecord struct {
	Ticker    string          `json:"ticker"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// LoadSignals reads a JSON array of entry signals from path.
func LoadSignals(path string) ([]domain.EntrySignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: read signals %s: %w", path, err)
	}

	var records []signalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("backtest: parse signals %s: %w", path, err)
	}

	signals := make([]domain.EntrySignal, 0, len(records))
	for i, r := range records {
		if r.Ticker == "" {
			return nil, fmt.Errorf("backtest: signals %s: record %d has no ticker", path, i)
		}
		if r.Timestamp.IsZero() {
			return nil, fmt.Errorf("backtest: signals %s: record %d has no timestamp", path, i)
		}
		signals = append(signals, domain.EntrySignal{
			ID:           r.ID,
			Ticker:       r.Ticker,
			Score:        r.Score,
			Sentiment:    r.Sentiment,
			CatalystType: domain.CatalystType(r.CatalystType),
			StrategyTag:  r.StrategyTag,
			Timestamp:    r.Timestamp,
		})
	}
	return signals, nil
}

// LoadBars reads a JSON array of price bars from path and indexes them into
// a PriceSeries.
func LoadBars(path string) (*PriceSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: read bars %s: %w", path, err)
	}

	var records []barRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("backtest: parse bars %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("backtest: bars %s: no records", path)
	}

	bars := make([]domain.Bar, 0, len(records))
	for i, r := range records {
		if r.Ticker == "" {
			return nil, fmt.Errorf("backtest: bars %s: record %d has no ticker", path, i)
		}
		if r.Timestamp.IsZero() {
			return nil, fmt.Errorf("backtest: bars %s: record %d has no timestamp", path, i)
		}
		if !r.Close.IsPositive() {
			return nil, fmt.Errorf("backtest: bars %s: record %d has close %s", path, i, r.Close)
		}
		bars = append(bars, domain.Bar{
			Ticker:    r.Ticker,
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return NewPriceSeries(bars), nil
}
