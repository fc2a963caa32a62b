package integration_testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *Suite

// Needs a local docker daemon: RUNCOACH_DOCKER_TESTS=1 go test ./integration_testing/...
func TestMain(m *testing.M) {
	if os.Getenv("RUNCOACH_DOCKER_TESTS") == "" {
		fmt.Println("RUNCOACH_DOCKER_TESTS not set, skipping integration tests")
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	suite = newSuite(ctx)

	code := m.Run()

	cancel()
	suite.cleanup()
	os.Exit(code)
}

func doRequest(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, serverEndpoint+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func waitForServer(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(serverEndpoint + "/version")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)
}

func TestServer_SyncReportAndAdherence(t *testing.T) {
	waitForServer(t)

	// no token
	resp, err := http.Get(serverEndpoint + "/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, body := doRequest(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"new_runs_fetched": 2}`, string(body))

	// already cached
	status, body = doRequest(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"new_runs_fetched": 0}`, string(body))

	status, body = doRequest(t, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, status)
	var runsResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &runsResp))
	assert.Equal(t, 2, runsResp.Count)

	status, body = doRequest(t, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_runs":2`)

	today := time.Now().UTC()
	plan := fmt.Sprintf(`{"plan_name": "Integration Plan", "weeks": [{"week_number": 1, "runs": [
		{"date": %q, "type": "easy", "distance_km": 8},
		{"date": %q, "type": "workout", "distance_km": 10}
	]}]}`, today.AddDate(0, 0, -2).Format("2006-01-02"), today.AddDate(0, 0, -4).Format("2006-01-02"))

	status, body = doRequest(t, http.MethodPost, "/plans?id=integration", plan)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doRequest(t, http.MethodGet, "/adherence", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var result struct {
		PlanID            string  `json:"plan_id"`
		CompletionRate    float64 `json:"completion_rate"`
		WorkoutsCompleted int     `json:"workouts_completed"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "integration", result.PlanID)
	assert.Equal(t, 2, result.WorkoutsCompleted)
	assert.Equal(t, 100.0, result.CompletionRate)

	// two syncs above, the third still fits, the fourth is limited
	status, _ = doRequest(t, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = doRequest(t, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
}
