package pkg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("10/05/2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-05-10T07:30:00Z":      time.Date(2024, 5, 10, 7, 30, 0, 0, time.UTC),
		"2024-05-10T07:30:00":       time.Date(2024, 5, 10, 7, 30, 0, 0, time.UTC),
		"2024-05-10 07:30:00":       time.Date(2024, 5, 10, 7, 30, 0, 0, time.UTC),
		"2024-05-10":                time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		"2024-05-10T07:30:00.5Z":    time.Date(2024, 5, 10, 7, 30, 0, 500000000, time.UTC),
		"2024-05-10T09:30:00+02:00": time.Date(2024, 5, 10, 7, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %v", in, got)
	}

	_, err := ParseTimestamp("")
	require.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected format")
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-05-10T23:59:00+02:00")
	require.NoError(t, err)
	// calendar day as seen in the timestamp's own offset
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDay("not-a-date")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 5, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
	// across a year boundary
	assert.Equal(t, 2, DaysBetween(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestWeekKeyOf(t *testing.T) {
	// 2021-01-03 is a Sunday that still belongs to ISO week 53 of 2020
	assert.Equal(t, WeekKey{Year: 2020, Week: 53}, WeekKeyOf(time.Date(2021, 1, 3, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, WeekKey{Year: 2021, Week: 1}, WeekKeyOf(time.Date(2021, 1, 4, 12, 0, 0, 0, time.UTC)))
	// 2024-12-30 is a Monday that belongs to ISO week 1 of 2025
	assert.Equal(t, WeekKey{Year: 2025, Week: 1}, WeekKeyOf(time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)))

	assert.True(t, WeekKey{Year: 2024, Week: 52}.Before(WeekKey{Year: 2025, Week: 1}))
	assert.False(t, WeekKey{Year: 2025, Week: 2}.Before(WeekKey{Year: 2025, Week: 1}))
}

func TestWeekDateRange(t *testing.T) {
	cases := []struct {
		year, week int
		want       string
	}{
		{2024, 19, "2024-05-06 to 2024-05-12"},
		{2020, 53, "2020-12-28 to 2021-01-03"},
		{2025, 1, "2024-12-30 to 2025-01-05"},
		{2026, 1, "2025-12-29 to 2026-01-04"},
	}
	for _, tc := range cases {
		mon, sun := WeekDateRange(tc.year, tc.week)
		assert.Equal(t, time.Monday, mon.Weekday())
		assert.Equal(t, time.Sunday, sun.Weekday())
		assert.Equal(t, tc.want, FormatWeekRange(mon, sun))
	}
}

func TestGroupByWeek(t *testing.T) {
	dates := []string{"2024-05-06", "2024-05-12", "2024-05-13", "", "bad"}
	grouped := GroupByWeek(dates, func(s string) (time.Time, bool) {
		d, err := ParseDate(s)
		return d, err == nil
	})

	require.Len(t, grouped, 2)
	assert.Equal(t, []string{"2024-05-06", "2024-05-12"}, grouped[WeekKey{Year: 2024, Week: 19}])
	assert.Equal(t, []string{"2024-05-13"}, grouped[WeekKey{Year: 2024, Week: 20}])
}
