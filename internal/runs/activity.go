package runs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/2beens/runcoach/pkg"
)

// Activity is one completed run as cached locally.
// Field names carry their units, as they are persisted in run_<id>.json.
type Activity struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name,omitempty"`
	SportType     string    `json:"sport_type,omitempty"`
	StartDate     string    `json:"start_date,omitempty"`
	Distance      float64   `json:"distance_metres"`
	MovingTime    float64   `json:"moving_time_seconds"`
	ElapsedTime   float64   `json:"elapsed_time_seconds,omitempty"`
	ElevationGain float64   `json:"total_elevation_gain_metres"`
	AverageSpeed  float64   `json:"average_speed_mps"`
	MaxSpeed      float64   `json:"max_speed_mps,omitempty"`
	Calories      *float64  `json:"calories,omitempty"`
	ElevHigh      *float64  `json:"elev_high_metres,omitempty"`
	ElevLow       *float64  `json:"elev_low_metres,omitempty"`
	StartLatLng   []float64 `json:"start_latlng,omitempty"`
	EndLatLng     []float64 `json:"end_latlng,omitempty"`

	Laps    []Lap                      `json:"laps"`
	Streams map[string]json.RawMessage `json:"streams"`
}

// Lap keeps the provider's lap field names.
type Lap struct {
	ID               int64   `json:"id,omitempty"`
	Name             string  `json:"name,omitempty"`
	LapIndex         int     `json:"lap_index,omitempty"`
	Distance         float64 `json:"distance"`
	MovingTime       float64 `json:"moving_time"`
	ElapsedTime      float64 `json:"elapsed_time,omitempty"`
	AverageSpeed     float64 `json:"average_speed"`
	MaxSpeed         float64 `json:"max_speed,omitempty"`
	AverageHeartrate float64 `json:"average_heartrate,omitempty"`
	MaxHeartrate     float64 `json:"max_heartrate,omitempty"`
}

// IsRun reports whether the sport type names any kind of run (Run, TrailRun, VirtualRun...).
func (a *Activity) IsRun() bool {
	return strings.Contains(strings.ToLower(a.SportType), "run")
}

// StartTime parses StartDate. ok is false when the date is missing or unparseable.
func (a *Activity) StartTime() (time.Time, bool) {
	if a.StartDate == "" {
		return time.Time{}, false
	}
	t, err := pkg.ParseTimestamp(a.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Day is the YYYY-MM-DD prefix of the start date, empty when missing.
func (a *Activity) Day() string {
	if len(a.StartDate) < len(pkg.DateLayout) {
		return a.StartDate
	}
	return a.StartDate[:len(pkg.DateLayout)]
}

func (a *Activity) HasStreams() bool {
	return len(a.Streams) > 0
}

// LapHeartrates returns every positive lap average heart rate.
func (a *Activity) LapHeartrates() []float64 {
	var hrs []float64
	for _, lap := range a.Laps {
		if lap.AverageHeartrate > 0 {
			hrs = append(hrs, lap.AverageHeartrate)
		}
	}
	return hrs
}
