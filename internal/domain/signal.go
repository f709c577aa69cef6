package domain

import "time"

// CatalystType labels the kind of event that produced an entry signal.
// The upstream classification pipeline assigns these; this system only
// groups by them.
type CatalystType string

const (
	CatalystFDA      CatalystType = "fda"
	CatalystEarnings CatalystType = "earnings"
	CatalystMerger   CatalystType = "merger"
	CatalystOffering CatalystType = "offering"
	CatalystContract CatalystType = "contract"
	CatalystOther    CatalystType = "other"
)

// EntrySignal is an entry candidate produced by the upstream signal source.
type EntrySignal struct {
	ID           string
	Ticker       string
	Score        float64
	Sentiment    float64
	CatalystType CatalystType
	StrategyTag  string
	Timestamp    time.Time
}
