package util

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-date format used across CSV files,
// API parameters and result artifacts.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date into a UTC-midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// ParseDateLoose tries YYYY-MM-DD first and falls back to RFC3339,
// truncating to the calendar date. Returns (t, true) if any worked.
func ParseDateLoose(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// FormatDate renders a time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateBetween reports whether d falls within [start, end] inclusive.
// A zero end means "no upper bound".
func DateBetween(d, start, end time.Time) bool {
	if d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}
