// internal/market/session_test.go
package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/config"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestCalendar(t *testing.T) *Calendar {
	cal, err := NewCalendar(config.MarketHoursConfig{
		Timezone: "Asia/Kolkata",
		PreStart: "08:00",
		Open:     "09:15",
		Close:    "15:30",
		PostEnd:  "17:00",
	})
	require.NoError(t, err)
	return cal
}

// at returns a weekday instant in the calendar's zone. 2026-01-05 is a Monday.
func at(t *testing.T, day int, hour, minute int) time.Time {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2026, 1, day, hour, minute, 0, 0, loc)
}

// ==========================
// Session Classification Tests
// ==========================

func TestCalendar_Classify(t *testing.T) {
	cal := createTestCalendar(t)

	tests := []struct {
		name     string
		now      time.Time
		expected Session
	}{
		{"before pre-market", at(t, 5, 7, 59), SessionClosed},
		{"pre-market start", at(t, 5, 8, 0), SessionPreMarket},
		{"pre-market middle", at(t, 5, 8, 45), SessionPreMarket},
		{"minute before open", at(t, 5, 9, 14), SessionPreMarket},
		{"opening bell minute", at(t, 5, 9, 15), SessionOpen},
		{"mid-session", at(t, 5, 12, 0), SessionOpen},
		{"closing minute inclusive", at(t, 5, 15, 30), SessionOpen},
		{"minute after close", at(t, 5, 15, 31), SessionPostMarket},
		{"post-market end inclusive", at(t, 5, 17, 0), SessionPostMarket},
		{"after post-market", at(t, 5, 17, 1), SessionClosed},
		{"saturday mid-day", at(t, 3, 12, 0), SessionClosed},
		{"sunday pre-market time", at(t, 4, 8, 30), SessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cal.Classify(tt.now))
		})
	}
}

func TestCalendar_Classify_TimezoneConversion(t *testing.T) {
	cal := createTestCalendar(t)

	// 06:30 UTC on a Monday is 12:00 IST, inside the open session.
	utc := time.Date(2026, 1, 5, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, SessionOpen, cal.Classify(utc))
}

func TestNewCalendar_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MarketHoursConfig
	}{
		{"bad timezone", config.MarketHoursConfig{Timezone: "Mars/Olympus", PreStart: "08:00", Open: "09:15", Close: "15:30", PostEnd: "17:00"}},
		{"unparsable open", config.MarketHoursConfig{Timezone: "Asia/Kolkata", PreStart: "08:00", Open: "9am", Close: "15:30", PostEnd: "17:00"}},
		{"close before open", config.MarketHoursConfig{Timezone: "Asia/Kolkata", PreStart: "08:00", Open: "15:30", Close: "09:15", PostEnd: "17:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalendar(tt.cfg)
			assert.Error(t, err)
		})
	}
}

// ==========================
// Eligibility Tests
// ==========================

func TestEligibleContentTypes(t *testing.T) {
	tests := []struct {
		session  Session
		expected []ContentType
	}{
		{SessionPreMarket, []ContentType{ContentPreMarketBrief, ContentNewsAlert}},
		{SessionOpen, []ContentType{ContentOpeningBell, ContentMarketUpdate, ContentNewsAlert}},
		{SessionPostMarket, []ContentType{ContentClosingSummary, ContentNewsAlert}},
		{SessionClosed, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.session), func(t *testing.T) {
			assert.Equal(t, tt.expected, EligibleContentTypes(tt.session))
		})
	}
}

// ==========================
// Due Slot Tests
// ==========================

func TestCalendar_DueSlots(t *testing.T) {
	cal := createTestCalendar(t)

	tests := []struct {
		name     string
		lastTick time.Time
		now      time.Time
		expected []ContentType
	}{
		{
			name:     "opening bell fires at open",
			lastTick: at(t, 5, 9, 14),
			now:      at(t, 5, 9, 15),
			expected: []ContentType{ContentOpeningBell},
		},
		{
			name:     "half hour update",
			lastTick: at(t, 5, 11, 29),
			now:      at(t, 5, 11, 30),
			expected: []ContentType{ContentMarketUpdate},
		},
		{
			name:     "no slot between updates",
			lastTick: at(t, 5, 11, 31),
			now:      at(t, 5, 11, 32),
			expected: nil,
		},
		{
			name:     "closing summary after close",
			lastTick: at(t, 5, 15, 30),
			now:      at(t, 5, 15, 31),
			expected: []ContentType{ContentClosingSummary},
		},
		{
			name:     "pre-market brief at window start",
			lastTick: at(t, 5, 7, 59),
			now:      at(t, 5, 8, 0),
			expected: []ContentType{ContentPreMarketBrief},
		},
		{
			name:     "gap coalesces missed updates into one",
			lastTick: at(t, 5, 10, 59),
			now:      at(t, 5, 12, 0),
			expected: []ContentType{ContentMarketUpdate},
		},
		{
			name:     "weekend stays silent",
			lastTick: at(t, 3, 9, 0),
			now:      at(t, 3, 10, 0),
			expected: nil,
		},
		{
			name:     "zero last tick catches up from midnight",
			lastTick: time.Time{},
			now:      at(t, 5, 12, 0),
			expected: []ContentType{ContentPreMarketBrief, ContentOpeningBell, ContentMarketUpdate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cal.DueSlots(tt.now, tt.lastTick))
		})
	}
}

func TestSession_Valid(t *testing.T) {
	assert.True(t, SessionOpen.Valid())
	assert.True(t, SessionClosed.Valid())
	assert.False(t, Session("lunch").Valid())
}
