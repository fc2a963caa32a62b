package pkg

import (
	"fmt"
	"math"
)

const NotAvailable = "N/A"

// paces slower than a day per kilometre are not shown
const maxSecondsPerKm = 24 * 60 * 60

// FormatPace converts speed in metres per second to a min/km pace, e.g. "5:45".
// Seconds are truncated, not rounded.
func FormatPace(speedMps float64) string {
	if speedMps <= 0 || math.IsNaN(speedMps) || math.IsInf(speedMps, 0) {
		return NotAvailable
	}
	secsPerKmFloat := 1000 / speedMps
	if secsPerKmFloat > maxSecondsPerKm {
		return NotAvailable
	}
	// seconds per km, floored; the epsilon absorbs float noise like 299.99999999999994
	secsPerKm := int(math.Floor(secsPerKmFloat + 1e-9))
	return fmt.Sprintf("%d:%02d", secsPerKm/60, secsPerKm%60)
}

// PaceFromDistanceTime derives the pace from total distance (metres) and moving time (seconds).
func PaceFromDistanceTime(distanceMetres, movingTimeSeconds float64) string {
	if distanceMetres <= 0 || movingTimeSeconds <= 0 {
		return NotAvailable
	}
	return FormatPace(distanceMetres / movingTimeSeconds)
}

// FormatDuration renders seconds as H:MM:SS, or M:SS when under an hour.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// RoundTo rounds f to the given number of decimals.
func RoundTo(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}
