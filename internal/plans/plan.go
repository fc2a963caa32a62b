package plans

import (
	"fmt"

	"github.com/2beens/runcoach/pkg"
)

type WorkoutType string

const (
	WorkoutEasy          WorkoutType = "easy"
	WorkoutWorkout       WorkoutType = "workout"
	WorkoutLongRun       WorkoutType = "long_run"
	WorkoutTuneupRace    WorkoutType = "tuneup_race"
	WorkoutGym           WorkoutType = "gym"
	WorkoutCrossTraining WorkoutType = "cross_training"
	WorkoutRest          WorkoutType = "rest"
)

var knownWorkoutTypes = map[WorkoutType]bool{
	WorkoutEasy:          true,
	WorkoutWorkout:       true,
	WorkoutLongRun:       true,
	WorkoutTuneupRace:    true,
	WorkoutGym:           true,
	WorkoutCrossTraining: true,
	WorkoutRest:          true,
}

// IsRunning is false for gym, cross training and rest days; those are never
// compared against activities.
func (t WorkoutType) IsRunning() bool {
	switch t {
	case WorkoutGym, WorkoutCrossTraining, WorkoutRest:
		return false
	default:
		return true
	}
}

type GoalRace struct {
	Date       string  `json:"date,omitempty"`
	RaceType   string  `json:"race_type,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	GoalTime   string  `json:"goal_time,omitempty"`
	GoalPace   string  `json:"goal_pace_min_per_km,omitempty"`
	RaceName   string  `json:"race_name,omitempty"`
}

type PlannedRun struct {
	DayOfWeek       string      `json:"day_of_week,omitempty"`
	Date            string      `json:"date,omitempty"`
	Type            WorkoutType `json:"type"`
	Description     string      `json:"description,omitempty"`
	DistanceKm      *float64    `json:"distance_km,omitempty"`
	TargetPace      string      `json:"target_pace_min_per_km,omitempty"`
	Structure       string      `json:"structure,omitempty"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	RaceName        string      `json:"race_name,omitempty"`
}

type Week struct {
	WeekNumber             int          `json:"week_number"`
	WeekStartDate          string       `json:"week_start_date,omitempty"`
	TotalPlannedDistanceKm *float64     `json:"total_planned_distance_km,omitempty"`
	WeeklyFocus            string       `json:"weekly_focus,omitempty"`
	Runs                   []PlannedRun `json:"runs"`
}

type Plan struct {
	ID            string   `json:"id,omitempty"`
	PlanName      string   `json:"plan_name"`
	GoalRace      GoalRace `json:"goal_race,omitzero"`
	CreatedDate   string   `json:"created_date,omitempty"`
	PlanStartDate string   `json:"plan_start_date,omitempty"`
	PlanEndDate   string   `json:"plan_end_date,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Weeks         []Week   `json:"weeks"`
	// IsActive is a pointer so an absent flag can default to active.
	IsActive  *bool  `json:"is_active,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (p *Plan) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// Validate checks the fields the matcher relies on: planned dates must be
// YYYY-MM-DD and workout types must be known.
func (p *Plan) Validate() error {
	for _, week := range p.Weeks {
		for i, run := range week.Runs {
			if run.Date != "" {
				if _, err := pkg.ParseDate(run.Date); err != nil {
					return fmt.Errorf("%w: week %d run %d: %s", ErrInvalidPlan, week.WeekNumber, i+1, err)
				}
			}
			if run.Type != "" && !knownWorkoutTypes[run.Type] {
				return fmt.Errorf("%w: week %d run %d: unknown workout type %q", ErrInvalidPlan, week.WeekNumber, i+1, run.Type)
			}
		}
	}
	if p.GoalRace.Date != "" {
		if _, err := pkg.ParseDate(p.GoalRace.Date); err != nil {
			return fmt.Errorf("%w: goal race: %s", ErrInvalidPlan, err)
		}
	}
	return nil
}

// Summary is the listing view of a plan.
type Summary struct {
	ID        string `json:"id"`
	PlanName  string `json:"plan_name"`
	RaceDate  string `json:"race_date,omitempty"`
	RaceName  string `json:"race_name,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

const unnamedPlan = "Unnamed Plan"

func (p *Plan) Summary() Summary {
	name := p.PlanName
	if name == "" {
		name = unnamedPlan
	}
	return Summary{
		ID:        p.ID,
		PlanName:  name,
		RaceDate:  p.GoalRace.Date,
		RaceName:  p.GoalRace.RaceName,
		IsActive:  p.Active(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
