// Package market classifies wall-clock time into trading sessions and decides
// which content types are publishable in each session. Everything here is a
// pure function of (time, calendar) so it is testable with fixed timestamps.
package market

import (
	"fmt"
	"time"

	"finpost-workers/internal/common/config"
)

// Session is the trading-session classification for a point in time.
type Session string

const (
	SessionPreMarket  Session = "pre_market"
	SessionOpen       Session = "open"
	SessionPostMarket Session = "post_market"
	SessionClosed     Session = "closed"
)

// ContentType tags the kind of post a producer generates.
type ContentType string

const (
	ContentOpeningBell    ContentType = "opening_bell"
	ContentMarketUpdate   ContentType = "market_update"
	ContentNewsAlert      ContentType = "news_alert"
	ContentClosingSummary ContentType = "closing_summary"
	ContentPreMarketBrief ContentType = "pre_market_brief"
)

// Calendar holds the resolved trading-day windows. Minutes are measured from
// midnight in Location.
type Calendar struct {
	Location *time.Location

	preStart int
	open     int
	close    int
	postEnd  int
}

// NewCalendar resolves a MarketHoursConfig into a Calendar.
func NewCalendar(cfg config.MarketHoursConfig) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cal := &Calendar{Location: loc}
	for _, f := range []struct {
		name string
		raw  string
		dst  *int
	}{
		{"pre_start", cfg.PreStart, &cal.preStart},
		{"open", cfg.Open, &cal.open},
		{"close", cfg.Close, &cal.close},
		{"post_end", cfg.PostEnd, &cal.postEnd},
	} {
		m, err := parseMinutes(f.raw)
		if err != nil {
			return nil, fmt.Errorf("market_hours.%s: %w", f.name, err)
		}
		*f.dst = m
	}

	if !(cal.preStart <= cal.open && cal.open < cal.close && cal.close <= cal.postEnd) {
		return nil, fmt.Errorf("market hours are not ordered: pre=%s open=%s close=%s post=%s",
			cfg.PreStart, cfg.Open, cfg.Close, cfg.PostEnd)
	}

	return cal, nil
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Classify returns the session for the given instant. Weekends are always
// Closed. Window boundaries are inclusive on both ends; where two windows
// share a boundary minute the more specific session (open) wins.
func (c *Calendar) Classify(now time.Time) Session {
	local := now.In(c.Location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return SessionClosed
	}

	minute := local.Hour()*60 + local.Minute()

	switch {
	case minute >= c.open && minute <= c.close:
		return SessionOpen
	case minute >= c.preStart && minute < c.open:
		return SessionPreMarket
	case minute > c.close && minute <= c.postEnd:
		return SessionPostMarket
	default:
		return SessionClosed
	}
}

// EligibleContentTypes returns the content types publishable in a session.
func EligibleContentTypes(s Session) []ContentType {
	switch s {
	case SessionPreMarket:
		return []ContentType{ContentPreMarketBrief, ContentNewsAlert}
	case SessionOpen:
		return []ContentType{ContentOpeningBell, ContentMarketUpdate, ContentNewsAlert}
	case SessionPostMarket:
		return []ContentType{ContentClosingSummary, ContentNewsAlert}
	default:
		return nil
	}
}

// DueSlots returns the scheduled content types whose slot falls within
// (lastTick, now]. The opening bell fires at the open instant, market updates
// on the hour and half hour while Open, the closing summary at the first
// post-market minute, and the pre-market brief at the pre-market start.
func (c *Calendar) DueSlots(now, lastTick time.Time) []ContentType {
	var due []ContentType

	local := now.In(c.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return nil
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)

	slotAt := func(minuteOfDay int) time.Time {
		return midnight.Add(time.Duration(minuteOfDay) * time.Minute)
	}
	inWindow := func(slot time.Time) bool {
		return slot.After(lastTick) && !slot.After(now)
	}

	if inWindow(slotAt(c.preStart)) {
		due = append(due, ContentPreMarketBrief)
	}
	if inWindow(slotAt(c.open)) {
		due = append(due, ContentOpeningBell)
	}
	if inWindow(slotAt(c.close + 1)) {
		due = append(due, ContentClosingSummary)
	}

	// Half-hourly market updates strictly inside the open window. The opening
	// minute itself belongs to the opening bell.
	for m := c.open; m <= c.close; m++ {
		if m%30 != 0 || m == c.open {
			continue
		}
		if inWindow(slotAt(m)) {
			due = append(due, ContentMarketUpdate)
			break
		}
	}

	return due
}

// Valid reports whether s is one of the four defined sessions.
func (s Session) Valid() bool {
	switch s {
	case SessionPreMarket, SessionOpen, SessionPostMarket, SessionClosed:
		return true
	}
	return false
}
