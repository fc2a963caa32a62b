package strava

import "github.com/2beens/runcoach/internal/runs"

// activity is the summary representation returned by /athlete/activities.
// Only the fields kept in the local cache are decoded.
type activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	SportType          string    `json:"sport_type"`
	StartDate          string    `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         float64   `json:"moving_time"`
	ElapsedTime        float64   `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	Calories           *float64  `json:"calories"`
	ElevHigh           *float64  `json:"elev_high"`
	ElevLow            *float64  `json:"elev_low"`
	StartLatLng        []float64 `json:"start_latlng"`
	EndLatLng          []float64 `json:"end_latlng"`
}

func (a activity) toActivity() runs.Activity {
	return runs.Activity{
		ID:            a.ID,
		Name:          a.Name,
		SportType:     a.SportType,
		StartDate:     a.StartDate,
		Distance:      a.Distance,
		MovingTime:    a.MovingTime,
		ElapsedTime:   a.ElapsedTime,
		ElevationGain: a.TotalElevationGain,
		AverageSpeed:  a.AverageSpeed,
		MaxSpeed:      a.MaxSpeed,
		Calories:      a.Calories,
		ElevHigh:      a.ElevHigh,
		ElevLow:       a.ElevLow,
		StartLatLng:   a.StartLatLng,
		EndLatLng:     a.EndLatLng,
	}
}
