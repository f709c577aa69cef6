package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

const unknownBucket = "unknown"

// holdBucket labels a hold-duration range for the hold-time breakdown.
type holdBucket struct {
	label string
	max   time.Duration
}

var holdBuckets = []holdBucket{
	{label: "<1h", max: time.Hour},
	{label: "1-6h", max: 6 * time.Hour},
	{label: "6-24h", max: 24 * time.Hour},
	{label: "1-3d", max: 72 * time.Hour},
	{label: ">3d", max: 0},
}

func breakdownByCatalyst(trades []domain.ClosedTrade, signals map[string]domain.EntrySignal) []GroupStats {
	return breakdown(trades, func(t domain.ClosedTrade) string {
		if sig, ok := signals[t.SourceSignalID]; ok && sig.CatalystType != "" {
			return string(sig.CatalystType)
		}
		return unknownBucket
	})
}

// breakdownByScore buckets trades by signal score in 0.2-wide bands.
func breakdownByScore(trades []domain.ClosedTrade, signals map[string]domain.EntrySignal) []GroupStats {
	return breakdown(trades, func(t domain.ClosedTrade) string {
		sig, ok := signals[t.SourceSignalID]
		if !ok {
			return unknownBucket
		}
		band := int(sig.Score / 0.2)
		if band < 0 {
			band = 0
		}
		if band > 4 {
			band = 4
		}
		return fmt.Sprintf("%.1f-%.1f", float64(band)*0.2, float64(band+1)*0.2)
	})
}

func breakdownByHoldTime(trades []domain.ClosedTrade) []GroupStats {
	return breakdown(trades, func(t domain.ClosedTrade) string {
		for _, b := range holdBuckets {
			if b.max > 0 && t.HoldDuration < b.max {
				return b.label
			}
		}
		return holdBuckets[len(holdBuckets)-1].label
	})
}

// breakdown groups trades by key and summarizes each group, sorted by key
// for stable output.
func breakdown(trades []domain.ClosedTrade, keyOf func(domain.ClosedTrade) string) []GroupStats {
	groups := make(map[string][]domain.ClosedTrade)
	for _, t := range trades {
		k := keyOf(t)
		groups[k] = append(groups[k], t)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]GroupStats, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		gs := GroupStats{Key: k, Trades: len(group)}

		var wins int
		var retSum, pnlSum float64
		for _, t := range group {
			if t.RealizedPnL.IsPositive() {
				wins++
			}
			pct, _ := t.RealizedPnLPct.Float64()
			retSum += pct
			pnl, _ := t.RealizedPnL.Float64()
			pnlSum += pnl
		}
		gs.WinRate = ptr(float64(wins) / float64(len(group)))
		gs.AvgReturnPct = ptr(retSum / float64(len(group)))
		gs.TotalPnL = pnlSum
		out = append(out, gs)
	}
	return out
}
