// Package calendar implements a US equities market calendar: regular session
// hours in exchange time, weekends, and fixed-date full-day holidays.
package calendar

import "time"

// Session bounds in exchange-local time.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Calendar implements domain.MarketCalendar for the regular US equities
// session (09:30-16:00 America/New_York, weekdays, minus holidays).
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool // "2006-01-02" in exchange time
}

// New creates a Calendar with the given holiday dates (formatted
// "2006-01-02"). The exchange timezone falls back to UTC when the tzdata for
// America/New_York is unavailable.
func New(holidays []string) *Calendar {
	return NewInLocation("America/New_York", holidays)
}

// NewInLocation is New with an explicit exchange timezone.
func NewInLocation(tz string, holidays []string) *Calendar {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		set[h] = true
	}
	return &Calendar{loc: loc, holidays: set}
}

// IsOpen reports whether the regular session is trading at the given instant.
func (c *Calendar) IsOpen(now time.Time) bool {
	local := now.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c.holidays[local.Format("2006-01-02")] {
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, c.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, c.loc)
	return !local.Before(open) && local.Before(close)
}

// AlwaysOpen is a calendar that never gates the monitor, used for 24/7 paper
// trading and tests.
type AlwaysOpen struct{}

// IsOpen always returns true.
func (AlwaysOpen) IsOpen(time.Time) bool { return true }
