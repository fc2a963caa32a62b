package adherence

import (
	"fmt"
	"time"

	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/pkg"
)

const (
	// ToleranceDays is how far, in whole days, an activity may sit from the planned date.
	ToleranceDays       = 1
	DefaultUpcomingDays = 7

	// RecentCompleted and RecentMissed bound the lists returned by Latest.
	RecentCompleted = 5
	RecentMissed    = 10
)

type ActualRun struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Date       string  `json:"date"`
	DistanceKm float64 `json:"distance_km"`
	Pace       string  `json:"pace"`
}

type CompletedWorkout struct {
	Date    string           `json:"date"`
	Week    int              `json:"week"`
	Planned plans.PlannedRun `json:"planned"`
	Actual  ActualRun        `json:"actual"`
}

type MissedWorkout struct {
	Week int `json:"week"`
	plans.PlannedRun
}

type UpcomingWorkout struct {
	DaysAway int `json:"days_away"`
	Week     int `json:"week"`
	plans.PlannedRun
}

type Result struct {
	PlanID            string             `json:"plan_id"`
	PlanName          string             `json:"plan_name"`
	RaceDate          string             `json:"race_date,omitempty"`
	// DaysUntilRace is negative once the race is over; nil when the plan has no race date.
	DaysUntilRace     *int               `json:"days_until_race,omitempty"`
	CompletionRate    float64            `json:"completion_rate"`
	WorkoutsCompleted int                `json:"workouts_completed"`
	WorkoutsMissed    int                `json:"workouts_missed"`
	CompletedWorkouts []CompletedWorkout `json:"completed_workouts"`
	MissedWorkouts    []MissedWorkout    `json:"missed_workouts"`
	UpcomingWorkouts  []UpcomingWorkout  `json:"upcoming_workouts"`
}

// Recent keeps only the last n completed and last m missed workouts in the lists.
// The counters and the completion rate still describe the whole plan.
func (r *Result) Recent(n, m int) *Result {
	trimmed := *r
	trimmed.CompletedWorkouts = tail(r.CompletedWorkouts, n)
	trimmed.MissedWorkouts = tail(r.MissedWorkouts, m)
	return &trimmed
}

// Latest is Recent with the default list sizes used by the API, the tools and the CLI.
func (r *Result) Latest() *Result {
	return r.Recent(RecentCompleted, RecentMissed)
}

func tail[T any](items []T, n int) []T {
	if n < 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// Matcher pairs planned workouts with cached activities.
type Matcher struct {
	upcomingDays int
}

// NewMatcher returns a matcher listing upcoming workouts at most upcomingDays ahead.
// Zero or a negative value lists every future workout.
func NewMatcher(upcomingDays int) *Matcher {
	return &Matcher{upcomingDays: upcomingDays}
}

type datedActivity struct {
	activity *runs.Activity
	start    time.Time
	day      time.Time
}

// Match classifies every dated planned run of the plan as completed, missed or upcoming
// relative to today. Runs without a date are ignored. Gym, cross training and rest
// days in the past count neither as completed nor as missed.
//
// When several activities fall inside the tolerance window the closest day wins,
// then the most recent start, then the earlier position in activities.
func (m *Matcher) Match(plan *plans.Plan, activities []runs.Activity, today time.Time) (*Result, error) {
	dated := make([]datedActivity, 0, len(activities))
	for i := range activities {
		start, ok := activities[i].StartTime()
		if !ok {
			continue
		}
		dated = append(dated, datedActivity{
			activity: &activities[i],
			start:    start,
			day:      pkg.CivilDate(start),
		})
	}

	result := &Result{
		PlanID:            plan.ID,
		PlanName:          plan.PlanName,
		CompletedWorkouts: []CompletedWorkout{},
		MissedWorkouts:    []MissedWorkout{},
		UpcomingWorkouts:  []UpcomingWorkout{},
	}
	today = pkg.CivilDate(today)

	if plan.GoalRace.Date != "" {
		raceDay, err := pkg.ParseDate(plan.GoalRace.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: goal race: %w", plans.ErrInvalidPlan, err)
		}
		daysUntilRace := pkg.DaysBetween(today, raceDay)
		result.RaceDate = raceDay.Format(pkg.DateLayout)
		result.DaysUntilRace = &daysUntilRace
	}

	for _, week := range plan.Weeks {
		for _, planned := range week.Runs {
			if planned.Date == "" {
				continue
			}
			day, err := pkg.ParseDate(planned.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: week %d: %w", plans.ErrInvalidPlan, week.WeekNumber, err)
			}
			planned.Date = day.Format(pkg.DateLayout)

			if daysAway := pkg.DaysBetween(today, day); daysAway > 0 {
				if m.upcomingDays <= 0 || daysAway <= m.upcomingDays {
					result.UpcomingWorkouts = append(result.UpcomingWorkouts, UpcomingWorkout{
						DaysAway:   daysAway,
						Week:       week.WeekNumber,
						PlannedRun: planned,
					})
				}
				continue
			}

			if !planned.Type.IsRunning() {
				continue
			}

			match := bestMatch(day, dated)
			if match == nil {
				result.MissedWorkouts = append(result.MissedWorkouts, MissedWorkout{
					Week:       week.WeekNumber,
					PlannedRun: planned,
				})
				continue
			}

			result.CompletedWorkouts = append(result.CompletedWorkouts, CompletedWorkout{
				Date:    planned.Date,
				Week:    week.WeekNumber,
				Planned: planned,
				Actual:  actualRun(match),
			})
		}
	}

	result.WorkoutsCompleted = len(result.CompletedWorkouts)
	result.WorkoutsMissed = len(result.MissedWorkouts)
	result.CompletionRate = CompletionRate(result.WorkoutsCompleted, result.WorkoutsMissed)

	return result, nil
}

func bestMatch(day time.Time, dated []datedActivity) *runs.Activity {
	var best *datedActivity
	bestDiff := 0
	for i := range dated {
		candidate := &dated[i]
		diff := abs(pkg.DaysBetween(day, candidate.day))
		if diff > ToleranceDays {
			continue
		}
		if best == nil || diff < bestDiff || (diff == bestDiff && candidate.start.After(best.start)) {
			best = candidate
			bestDiff = diff
		}
	}
	if best == nil {
		return nil
	}
	return best.activity
}

func actualRun(a *runs.Activity) ActualRun {
	name := a.Name
	if name == "" {
		name = "Unnamed"
	}
	return ActualRun{
		ID:         a.ID,
		Name:       name,
		Date:       a.Day(),
		DistanceKm: pkg.RoundTo(a.Distance/1000, 2),
		Pace:       pkg.PaceFromDistanceTime(a.Distance, a.MovingTime),
	}
}

// CompletionRate is completed / (completed + missed) as a percentage with one decimal,
// zero when nothing was due.
func CompletionRate(completed, missed int) float64 {
	total := completed + missed
	if total == 0 {
		return 0
	}
	return pkg.RoundTo(float64(completed)/float64(total)*100, 1)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
