package util

import "time"

// DayLayout is the calendar-date key used for accounting windows.
const DayLayout = "2006-01-02"

// DayKey returns the UTC calendar date of `now`, e.g. "2026-10-16".
func DayKey(now time.Time) string {
	return now.UTC().Format(DayLayout)
}

// TodayOpen returns UTC midnight (00:00) for `now`.
func TodayOpen(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextOpen returns the next UTC midnight after `now`.
func NextOpen(now time.Time) time.Time {
	return TodayOpen(now).AddDate(0, 0, 1)
}
