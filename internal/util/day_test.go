package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKeyUsesUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	// 21:30 EST on the 15th is 02:30 UTC on the 16th.
	now := time.Date(2026, 10, 15, 21, 30, 0, 0, est)
	assert.Equal(t, "2026-10-16", DayKey(now))
}

func TestTodayAndNextOpen(t *testing.T) {
	now := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), TodayOpen(now))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextOpen(now))

	midnight := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, TodayOpen(midnight))
	assert.Equal(t, midnight.Add(24*time.Hour), NextOpen(midnight))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())

	assert.Equal(t, time.UTC, RealClock{}.Now().Location())
}
