package pkg

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// ParseDate parses a plain ISO date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %q, expected format: YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseTimestamp accepts the date representations found in activity records and plans:
// RFC 3339 timestamps (with Z or an offset), timestamps without a zone, and plain dates.
// Values without a zone are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q, expected format: YYYY-MM-DD or YYYY-MM-DDTHH:MM:SSZ", s)
}

// ParseDay parses either a date or a timestamp and returns its calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %q, expected format: YYYY-MM-DD", s)
	}
	return CivilDate(t), nil
}

// CivilDate drops the clock part of t, keeping the calendar day as seen in t's own location.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(CivilDate(b).Sub(CivilDate(a)).Hours() / 24)
}

type WeekKey struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

func (k WeekKey) Before(other WeekKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Week < other.Week
}

// WeekKeyOf returns the ISO (year, week) of t.
func WeekKeyOf(t time.Time) WeekKey {
	y, w := t.ISOWeek()
	return WeekKey{Year: y, Week: w}
}

// WeekDateRange returns Monday and Sunday of the given ISO week.
// ISO week 1 starts on the Monday of the week containing January 4th.
func WeekDateRange(year, week int) (time.Time, time.Time) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	sinceMonday := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -sinceMonday+(week-1)*7)
	return monday, monday.AddDate(0, 0, 6)
}

func FormatWeekRange(monday, sunday time.Time) string {
	return fmt.Sprintf("%s to %s", monday.Format(DateLayout), sunday.Format(DateLayout))
}

// GroupByWeek buckets items by the ISO week of their date.
// Items for which dateOf reports false are left out.
func GroupByWeek[T any](items []T, dateOf func(T) (time.Time, bool)) map[WeekKey][]T {
	weeks := make(map[WeekKey][]T)
	for _, item := range items {
		d, ok := dateOf(item)
		if !ok {
			continue
		}
		key := WeekKeyOf(d)
		weeks[key] = append(weeks[key], item)
	}
	return weeks
}
