package backtest

import (
	"sort"
	"time"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// PriceSeries holds historical bars per ticker, sorted by timestamp. Bars are
// expected at (or finer than) the simulation tick resolution; lookups snap a
// tick to the most recent bar inside the tick window.
type PriceSeries struct {
	bars  map[string][]domain.Bar
	start time.Time
	end   time.Time
}

// NewPriceSeries builds a series from the given bars. Bar order does not
// matter; each ticker's bars are sorted internally.
func NewPriceSeries(bars []domain.Bar) *PriceSeries {
	s := &PriceSeries{bars: make(map[string][]domain.Bar)}
	for _, b := range bars {
		s.bars[b.Ticker] = append(s.bars[b.Ticker], b)
		if s.start.IsZero() || b.Timestamp.Before(s.start) {
			s.start = b.Timestamp
		}
		if b.Timestamp.After(s.end) {
			s.end = b.Timestamp
		}
	}
	for ticker := range s.bars {
		ts := s.bars[ticker]
		sort.Slice(ts, func(i, j int) bool { return ts[i].Timestamp.Before(ts[j].Timestamp) })
	}
	return s
}

// Bounds returns the earliest and latest bar timestamps across all tickers.
func (s *PriceSeries) Bounds() (start, end time.Time) {
	return s.start, s.end
}

// Tickers returns the tickers present in the series, sorted.
func (s *PriceSeries) Tickers() []string {
	out := make([]string, 0, len(s.bars))
	for t := range s.bars {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// BarAt returns the latest bar for ticker with a timestamp in
// (at-resolution, at]. The second return is false when the window has no bar,
// which the simulator records as a data gap.
func (s *PriceSeries) BarAt(ticker string, at time.Time, resolution time.Duration) (domain.Bar, bool) {
	bars := s.bars[ticker]
	if len(bars) == 0 {
		return domain.Bar{}, false
	}

	// First bar strictly after at, then step back one.
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(at) })
	if i == 0 {
		return domain.Bar{}, false
	}
	bar := bars[i-1]
	if !bar.Timestamp.After(at.Add(-resolution)) {
		return domain.Bar{}, false
	}
	return bar, true
}
