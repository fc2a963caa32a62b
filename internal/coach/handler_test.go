package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2beens/runcoach/internal/adherence"
	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/runs"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv, syncMiddleware ...mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter()
	NewHandler(env.service).SetupRoutes(router, syncMiddleware...)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHandler_Sync(t *testing.T) {
	source := &fakeSource{activities: []runs.Activity{runOn(1, "2024-05-10T07:00:00Z", 10000, 3000)}}
	env := newTestEnv(t, source)

	var middlewareHits int
	countingMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middlewareHits++
			next.ServeHTTP(w, r)
		})
	}
	router := newTestRouter(env, countingMiddleware)

	rr := doRequest(t, router, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]int{"new_runs_fetched": 1}, decodeBody[map[string]int](t, rr))
	assert.Equal(t, 1, middlewareHits)

	rr = doRequest(t, router, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, middlewareHits)

	rr = doRequest(t, router, http.MethodGet, "/report?refresh=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, middlewareHits)
	rep := decodeBody[TrainingReport](t, rr)
	require.NotNil(t, rep.NewRunsFetched)
	assert.Zero(t, *rep.NewRunsFetched)
	assert.Len(t, rep.Data.IndividualRuns, 1)
}

func TestHandler_SyncErrors(t *testing.T) {
	rr := doRequest(t, newTestRouter(newTestEnv(t, nil)), http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	env := newTestEnv(t, &fakeSource{})
	locked, err := env.service.locker.TryLock(context.Background(), syncLockKey)
	require.NoError(t, err)
	require.True(t, locked)

	rr = doRequest(t, newTestRouter(env), http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), ErrSyncInProgress.Error())
}

func TestHandler_Runs(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)
	for _, a := range []runs.Activity{
		runOn(1, "2024-05-09T07:00:00Z", 8000, 2400),
		runOn(2, "2024-05-10T07:00:00Z", 10000, 3000),
	} {
		require.NoError(t, env.activities.Store(context.Background(), &a))
	}

	rr := doRequest(t, router, http.MethodGet, "/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decodeBody[struct {
		Runs  []json.RawMessage `json:"runs"`
		Count int               `json:"count"`
	}](t, rr)
	assert.Equal(t, 1, listed.Count)

	rr = doRequest(t, router, http.MethodGet, "/runs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/runs/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(2), decodeBody[runs.Activity](t, rr).ID)

	rr = doRequest(t, router, http.MethodGet, "/runs/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(t, router, http.MethodGet, "/runs/404", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, http.MethodDelete, "/runs/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doRequest(t, router, http.MethodDelete, "/runs/2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_PlanLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)

	planJSON := `{
		"plan_name": "Half Marathon",
		"goal_race": {"date": "2024-06-30", "race_type": "half_marathon", "goal_time": "1:45:00"},
		"weeks": [{"week_number": 1, "runs": [
			{"date": "2024-05-11", "type": "easy", "distance_km": 8},
			{"date": "2024-05-13", "type": "long_run", "distance_km": 16}
		]}]
	}`
	rr := doRequest(t, router, http.MethodPost, "/plans?id=half", planJSON)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	saved := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "half", saved["plan_id"])
	assert.Equal(t, "Half Marathon", saved["plan_name"])

	rr = doRequest(t, router, http.MethodPost, "/plans", `{"plan_name": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(t, router, http.MethodPost, "/plans", `{"weeks": [{"runs": [{"date": "11/05/2024", "type": "easy"}]}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(t, router, http.MethodPost, "/plans?id=..", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/plans", "")
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decodeBody[struct {
		Plans []plans.Summary `json:"plans"`
		Count int             `json:"count"`
	}](t, rr)
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, "2024-06-30", listed.Plans[0].RaceDate)

	rr = doRequest(t, router, http.MethodPatch, "/plans/half", `{"goal_race": {"goal_time": "1:40:00"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, router, http.MethodGet, "/plans/half", "")
	require.Equal(t, http.StatusOK, rr.Code)
	plan := decodeBody[plans.Plan](t, rr)
	assert.Equal(t, "1:40:00", plan.GoalRace.GoalTime)
	assert.Equal(t, "half_marathon", plan.GoalRace.RaceType)

	rr = doRequest(t, router, http.MethodPatch, "/plans/half", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(t, router, http.MethodPatch, "/plans/missing", `{"notes": "x"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	activity := runOn(7, "2024-05-11T06:30:00Z", 8000, 2500)
	require.NoError(t, env.activities.Store(context.Background(), &activity))

	for _, target := range []string{"/plans/half/adherence", "/adherence"} {
		rr = doRequest(t, router, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rr.Code, target)
		result := decodeBody[adherence.Result](t, rr)
		assert.Equal(t, "half", result.PlanID)
		assert.Equal(t, 1, result.WorkoutsCompleted, target)
		assert.Equal(t, 100.0, result.CompletionRate)
		require.Len(t, result.UpcomingWorkouts, 1)
	}

	rr = doRequest(t, router, http.MethodDelete, "/plans/half", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doRequest(t, router, http.MethodGet, "/plans/half", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doRequest(t, router, http.MethodGet, "/adherence", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_AdherenceTrimsLists(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)

	var planned []plans.PlannedRun
	for day := 1; day <= 12; day++ {
		planned = append(planned, plans.PlannedRun{Date: fmt.Sprintf("2024-04-%02d", day*2), Type: plans.WorkoutEasy})
	}
	_, err := env.service.SavePlan(context.Background(), &plans.Plan{
		PlanName: "April",
		Weeks:    []plans.Week{{WeekNumber: 1, Runs: planned}},
	}, "april")
	require.NoError(t, err)

	rr := doRequest(t, router, http.MethodGet, "/plans/april/adherence", "")
	require.Equal(t, http.StatusOK, rr.Code)
	trimmed := decodeBody[adherence.Result](t, rr)
	assert.Equal(t, 12, trimmed.WorkoutsMissed)
	assert.Len(t, trimmed.MissedWorkouts, adherence.RecentMissed)

	rr = doRequest(t, router, http.MethodGet, "/plans/april/adherence?full=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[adherence.Result](t, rr).MissedWorkouts, 12)
}

func TestHandler_AdherenceMalformedPlanDate(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)

	// hand-edited file, never went through Save validation
	planFile := filepath.Join(env.plans.Dir(), "plan_edited.json")
	content := `{"id": "edited", "plan_name": "Edited", "weeks": [{"week_number": 2, "runs": [{"date": "2024/05/10", "type": "easy"}]}]}`
	require.NoError(t, os.WriteFile(planFile, []byte(content), 0o600))

	rr := doRequest(t, router, http.MethodGet, "/plans/edited/adherence", "")
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	body := decodeBody[map[string]string](t, rr)
	assert.Contains(t, body["error"], "week 2")
	assert.Contains(t, body["error"], "expected format: YYYY-MM-DD")
}

func TestHandler_RecentActivities(t *testing.T) {
	source := &fakeSource{activities: []runs.Activity{{ID: 3, SportType: "Swim"}}}
	router := newTestRouter(newTestEnv(t, source))

	rr := doRequest(t, router, http.MethodGet, "/activities/recent?days=3&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, source.lastLimit)
	assert.Equal(t, testToday.AddDate(0, 0, -3), source.lastAfter)

	rr = doRequest(t, router, http.MethodGet, "/activities/recent?days=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_RemoteActivities(t *testing.T) {
	source := &fakeSource{activities: []runs.Activity{
		{ID: 3, SportType: "Swim", StartDate: "2024-05-03T07:00:00Z"},
		{ID: 4, SportType: "Run", StartDate: "2024-05-04T07:00:00Z"},
	}}
	router := newTestRouter(newTestEnv(t, source))

	rr := doRequest(t, router, http.MethodGet, "/activities?limit=4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decodeBody[struct {
		Data []runs.Activity `json:"data"`
	}](t, rr)
	assert.Len(t, listed.Data, 2)
	assert.Equal(t, 4, source.lastLimit)
	assert.True(t, source.lastBefore.IsZero())

	rr = doRequest(t, router, http.MethodGet, "/activities?start_date=2024-05-01&end_date=2024-05-05", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, defaultRangeLimit, source.lastLimit)
	assert.Equal(t, "2024-05-05", source.lastBefore.Format("2006-01-02"))

	rr = doRequest(t, router, http.MethodGet, "/activities?start_date=2024-05-01", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "YYYY-MM-DD")
	rr = doRequest(t, router, http.MethodGet, "/activities?start_date=2024-05-05&end_date=2024-05-01", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/activities/4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	single := decodeBody[struct {
		Data runs.Activity `json:"data"`
	}](t, rr)
	assert.Equal(t, int64(4), single.Data.ID)

	rr = doRequest(t, router, http.MethodGet, "/activities/77", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/activities/4/streams?types=heartrate,cadence", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "heartrate")
	assert.Equal(t, []string{"heartrate", "cadence"}, source.lastKeys)

	rr = doRequest(t, router, http.MethodGet, "/activities/4/streams", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, DefaultStreamTypes, source.lastKeys)
}

func TestHandler_RemoteActivitiesWithoutSource(t *testing.T) {
	router := newTestRouter(newTestEnv(t, nil))

	for _, target := range []string{"/activities", "/activities/4", "/activities/4/streams"} {
		rr := doRequest(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
	}
}
