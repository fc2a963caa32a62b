package runs

import (
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeActivity builds a plausible run started at start.
func fakeActivity(faker *gofakeit.Faker, id int64, start time.Time) Activity {
	distance := faker.Float64Range(3000, 21000)
	speed := faker.Float64Range(2.5, 4.5)
	return Activity{
		ID:            id,
		Name:          fmt.Sprintf("%s Run", faker.City()),
		SportType:     "Run",
		StartDate:     start.UTC().Format(time.RFC3339),
		Distance:      distance,
		MovingTime:    distance / speed,
		ElevationGain: faker.Float64Range(0, 300),
		AverageSpeed:  speed,
	}
}
