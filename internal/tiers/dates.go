package tiers

import (
	"fmt"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
)

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(storage.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// DateKey formats a date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(storage.DateLayout)
}

// WeekKey returns the ISO week key for t, e.g. "2025-W03".
func WeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// WeekBounds returns the Monday and Sunday of the ISO week containing t.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	d := Day(t)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// MonthKey returns the month key for t, e.g. "2025-01".
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	d := Day(t)
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// WindowStart returns the first date of the trailing window of days ending at date.
func WindowStart(date time.Time, days int) time.Time {
	return Day(date).AddDate(0, 0, -(days - 1))
}

// Dates lists every date from start to end inclusive.
func Dates(start, end time.Time) []time.Time {
	var out []time.Time
	for d := Day(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
