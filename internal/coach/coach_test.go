package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper"),
	)
}

var testToday = time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)

// fakeSource serves a fixed activity list; every listing can be held
// on the gate channel when set.
type fakeSource struct {
	mutex      sync.Mutex
	activities []runs.Activity
	listErr    error
	listCalls  int
	lastAfter  time.Time
	lastBefore time.Time
	lastLimit  int
	lastKeys   []string
	gate       chan struct{}
	entered    chan struct{}
}

func (f *fakeSource) ListActivities(ctx context.Context, after time.Time, limit int) ([]runs.Activity, error) {
	return f.ListActivitiesBetween(ctx, after, time.Time{}, limit)
}

func (f *fakeSource) ListActivitiesBetween(_ context.Context, after, before time.Time, limit int) ([]runs.Activity, error) {
	f.mutex.Lock()
	f.listCalls++
	f.lastAfter = after
	f.lastBefore = before
	f.lastLimit = limit
	gate, entered := f.gate, f.entered
	f.mutex.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]runs.Activity(nil), f.activities...), nil
}

func (f *fakeSource) GetLaps(_ context.Context, id int64) ([]runs.Lap, error) {
	return []runs.Lap{{Distance: 1000, MovingTime: 300, AverageSpeed: 3.33, AverageHeartrate: 150}}, nil
}

func (f *fakeSource) GetActivity(_ context.Context, id int64) (*runs.Activity, error) {
	for i := range f.activities {
		if f.activities[i].ID == id {
			a := f.activities[i]
			return &a, nil
		}
	}
	return nil, runs.ErrActivityNotFound
}

func (f *fakeSource) GetStreams(_ context.Context, id int64, keys []string) (map[string]json.RawMessage, error) {
	f.mutex.Lock()
	f.lastKeys = keys
	f.mutex.Unlock()
	return map[string]json.RawMessage{"heartrate": json.RawMessage(`{"data":[150]}`)}, nil
}

func runOn(id int64, start string, distance, movingTime float64) runs.Activity {
	return runs.Activity{
		ID:           id,
		Name:         fmt.Sprintf("Run %d", id),
		SportType:    "Run",
		StartDate:    start,
		Distance:     distance,
		MovingTime:   movingTime,
		AverageSpeed: distance / movingTime,
	}
}

type testEnv struct {
	service        *Service
	source         *fakeSource
	activities     *runs.DiskStore
	plans          *plans.DiskStore
	metricsManager *metrics.Manager
}

func newTestEnv(t *testing.T, source *fakeSource) *testEnv {
	t.Helper()

	activities, err := runs.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	planStore, err := plans.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	metricsManager := metrics.NewTestManager()

	params := ServiceParams{
		Activities:     activities,
		Plans:          planStore,
		Locker:         NewLocalLocker(),
		MetricsManager: metricsManager,
		SyncLookback:   28 * 24 * time.Hour,
		ActivityLimit:  50,
		UpcomingDays:   7,
	}
	if source != nil {
		params.Source = source
	}
	service := NewService(params)
	service.now = func() time.Time { return testToday }

	return &testEnv{
		service:        service,
		source:         source,
		activities:     activities,
		plans:          planStore,
		metricsManager: metricsManager,
	}
}
