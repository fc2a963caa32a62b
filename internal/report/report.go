package report

import (
	"math"
	"slices"
	"time"

	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/pkg"
)

type Summary struct {
	TotalRuns       int     `json:"total_runs"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	TotalTime       string  `json:"total_time"`
	TotalElevationM int     `json:"total_elevation_m"`
	AvgPace         string  `json:"avg_pace"`
	AvgHR           *int    `json:"avg_hr"`
}

type WeeklySummary struct {
	Year       int     `json:"year"`
	Week       int     `json:"week"`
	DateRange  string  `json:"date_range"`
	WeekStart  string  `json:"week_start"`
	WeekEnd    string  `json:"week_end"`
	Runs       int     `json:"runs"`
	DistanceKm float64 `json:"distance_km"`
	Time       string  `json:"time"`
	ElevationM int     `json:"elevation_m"`
	AvgPace    string  `json:"avg_pace"`
	AvgHR      *int    `json:"avg_hr"`
}

type LapDetail struct {
	Km         int     `json:"km"`
	DistanceKm float64 `json:"distance_km"`
	Pace       string  `json:"pace"`
	HR         *int    `json:"hr"`
}

type RunDetail struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Date       string      `json:"date"`
	DistanceKm float64     `json:"distance_km"`
	Time       string      `json:"time"`
	Pace       string      `json:"pace"`
	ElevationM int         `json:"elevation_m"`
	AvgHR      *int        `json:"avg_hr"`
	HasStreams bool        `json:"has_streams"`
	Laps       []LapDetail `json:"laps"`
}

type Report struct {
	OverallSummary  Summary         `json:"overall_summary"`
	WeeklySummaries []WeeklySummary `json:"weekly_summaries"`
	IndividualRuns  []RunDetail     `json:"individual_runs"`
}

// Summarize aggregates any set of activities. The pace comes from the aggregate
// speed (total distance over total time), not from averaging per-run paces.
func Summarize(activities []runs.Activity) Summary {
	if len(activities) == 0 {
		return Summary{
			TotalTime: pkg.FormatDuration(0),
			AvgPace:   pkg.NotAvailable,
		}
	}

	var distance, movingTime, elevation float64
	var heartrates []float64
	for i := range activities {
		distance += activities[i].Distance
		movingTime += activities[i].MovingTime
		elevation += activities[i].ElevationGain
		heartrates = append(heartrates, activities[i].LapHeartrates()...)
	}

	return Summary{
		TotalRuns:       len(activities),
		TotalDistanceKm: pkg.RoundTo(distance/1000, 2),
		TotalTime:       pkg.FormatDuration(movingTime),
		TotalElevationM: int(math.RoundToEven(elevation)),
		AvgPace:         pkg.PaceFromDistanceTime(distance, movingTime),
		AvgHR:           meanHeartrate(heartrates),
	}
}

// meanHeartrate is the plain mean of lap averages, not weighted by lap length.
func meanHeartrate(values []float64) *int {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := int(math.RoundToEven(sum / float64(len(values))))
	return &avg
}

// Weekly groups activities by the ISO week of their start date, most recent week first.
// Activities without a usable start date are left out.
func Weekly(activities []runs.Activity) []WeeklySummary {
	byWeek := pkg.GroupByWeek(activities, func(a runs.Activity) (time.Time, bool) {
		return a.StartTime()
	})

	keys := make([]pkg.WeekKey, 0, len(byWeek))
	for key := range byWeek {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b pkg.WeekKey) int {
		switch {
		case b.Before(a):
			return -1
		case a.Before(b):
			return 1
		}
		return 0
	})

	weekly := make([]WeeklySummary, 0, len(keys))
	for _, key := range keys {
		stats := Summarize(byWeek[key])
		monday, sunday := pkg.WeekDateRange(key.Year, key.Week)
		weekly = append(weekly, WeeklySummary{
			Year:       key.Year,
			Week:       key.Week,
			DateRange:  pkg.FormatWeekRange(monday, sunday),
			WeekStart:  monday.Format(pkg.DateLayout),
			WeekEnd:    sunday.Format(pkg.DateLayout),
			Runs:       stats.TotalRuns,
			DistanceKm: stats.TotalDistanceKm,
			Time:       stats.TotalTime,
			ElevationM: stats.TotalElevationM,
			AvgPace:    stats.AvgPace,
			AvgHR:      stats.AvgHR,
		})
	}
	return weekly
}

// Run details a single activity. Its pace comes from the recorded average speed.
func Run(activity *runs.Activity) RunDetail {
	name := activity.Name
	if name == "" {
		name = "Unnamed Run"
	}

	laps := make([]LapDetail, 0, len(activity.Laps))
	for i, lap := range activity.Laps {
		var hr *int
		if lap.AverageHeartrate > 0 {
			rounded := int(math.RoundToEven(lap.AverageHeartrate))
			hr = &rounded
		}
		laps = append(laps, LapDetail{
			Km:         i + 1,
			DistanceKm: pkg.RoundTo(lap.Distance/1000, 2),
			Pace:       pkg.FormatPace(lap.AverageSpeed),
			HR:         hr,
		})
	}

	return RunDetail{
		ID:         activity.ID,
		Name:       name,
		Date:       activity.Day(),
		DistanceKm: pkg.RoundTo(activity.Distance/1000, 2),
		Time:       pkg.FormatDuration(activity.MovingTime),
		Pace:       pkg.FormatPace(activity.AverageSpeed),
		ElevationM: int(math.RoundToEven(activity.ElevationGain)),
		AvgHR:      meanHeartrate(activity.LapHeartrates()),
		HasStreams: activity.HasStreams(),
		Laps:       laps,
	}
}

// Build assembles the full report. Individual runs keep the input order,
// which is most recent first when activities come from the cache.
func Build(activities []runs.Activity) *Report {
	individual := make([]RunDetail, 0, len(activities))
	for i := range activities {
		individual = append(individual, Run(&activities[i]))
	}
	return &Report{
		OverallSummary:  Summarize(activities),
		WeeklySummaries: Weekly(activities),
		IndividualRuns:  individual,
	}
}
