package types

import (
	"fmt"
	"time"
)

// MonthLayout is the time layout of a month key such as "2024-05".
// Transactions are partitioned in storage by this key.
const MonthLayout = "2006-01"

// DateLayout is the storage layout of a transaction date.
const DateLayout = "2006-01-02"

// MonthOf returns the month key of t.
func MonthOf(t time.Time) string {
	return t.Format(MonthLayout)
}

// ParseMonth parses a month key and returns the first day of that month in UTC.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return t, nil
}

// ValidMonth reports whether s is a well-formed month key.
func ValidMonth(s string) bool {
	_, err := ParseMonth(s)
	return err == nil
}

// MonthRange returns every month key from "from" to "to", inclusive.
// Returns an empty slice when to precedes from.
func MonthRange(from, to string) ([]string, error) {
	start, err := ParseMonth(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseMonth(to)
	if err != nil {
		return nil, err
	}
	months := []string{}
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, MonthOf(m))
	}
	return months, nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
