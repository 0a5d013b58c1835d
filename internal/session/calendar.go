// Package session knows the regular-hours calendar and stores per-session analysis state.
package session

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Market session labels.
const (
	RegularHours = "regular_hours"
	PreMarket    = "pre_market"
	AfterHours   = "after_hours"
	Closed       = "closed"
)

// DateLayout is the trading-date format used in session keys.
const DateLayout = "2006-01-02"

// Calendar resolves trading dates and regular-hours windows in the exchange time zone.
type Calendar struct {
	loc      *time.Location
	openMin  int
	closeMin int
	holidays map[string]bool
}

// NewCalendar parses the zone, the HH:MM open and close, and YYYY-MM-DD holidays.
func NewCalendar(tz, open, close string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if c <= o {
		return nil, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	cal := &Calendar{loc: loc, openMin: o, closeMin: c, holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		if _, err := time.Parse(DateLayout, h); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		cal.holidays[h] = true
	}
	return cal, nil
}

// DefaultCalendar is US equities regular hours, 09:30-16:00 America/New_York.
func DefaultCalendar() *Calendar {
	c, err := NewCalendar("America/New_York", "09:30", "16:00", nil)
	if err != nil {
		panic(err)
	}
	return c
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether date is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(c.loc)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[d.Format(DateLayout)]
}

// TradingDate is the session whose bars a request at now should analyze: today once the
// market has opened, otherwise the last completed trading day.
func (c *Calendar) TradingDate(now time.Time) time.Time {
	local := now.In(c.loc)
	day := midnight(local)
	if c.IsTradingDay(day) {
		open, _ := c.Window(day)
		if !local.Before(open) {
			return day
		}
	}
	return c.PreviousTradingDay(day)
}

// PreviousTradingDay returns the last trading day strictly before date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	d := midnight(date.In(c.loc)).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Window returns the regular-hours open and close for date.
func (c *Calendar) Window(date time.Time) (open, close time.Time) {
	day := midnight(date.In(c.loc))
	y, m, d := day.Date()
	open = time.Date(y, m, d, c.openMin/60, c.openMin%60, 0, 0, c.loc)
	close = time.Date(y, m, d, c.closeMin/60, c.closeMin%60, 0, 0, c.loc)
	return open, close
}

// Status labels where now falls relative to today's session.
func (c *Calendar) Status(now time.Time) string {
	local := now.In(c.loc)
	if !c.IsTradingDay(local) {
		return Closed
	}
	open, close := c.Window(local)
	switch {
	case local.Before(open):
		return PreMarket
	case local.Before(close):
		return RegularHours
	default:
		return AfterHours
	}
}

// DateKey formats date as a session-key date in the exchange zone.
func (c *Calendar) DateKey(date time.Time) string {
	return date.In(c.loc).Format(DateLayout)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
