package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2beens/runcoach/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, apiToken string) *Server {
	t.Helper()

	cfg := &config.Config{
		Environment:       "development",
		DataDir:           t.TempDir(),
		ActivityLimit:     config.DefaultActivityLimit,
		UpcomingDays:      config.DefaultUpcomingDays,
		SyncLookbackWeeks: config.DefaultSyncLookbackWeeks,
		AllowedOrigins:    []string{"http://localhost:3000"},
		APIToken:          apiToken,
	}

	server, err := NewServer(context.Background(), NewServerParams{
		Config:      cfg,
		VersionInfo: "test-version",
	})
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Nil(t, server.redisClient)

	return server
}

func TestServer_routerSetup_publicRoutes(t *testing.T) {
	server := newTestServer(t, "secret")
	router := server.routerSetup()

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "test-version", resp["version"])

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_routerSetup_authRequired(t *testing.T) {
	server := newTestServer(t, "secret")
	router := server.routerSetup()

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":0`)
}

func TestServer_routerSetup_syncWithoutStrava(t *testing.T) {
	server := newTestServer(t, "")
	router := server.routerSetup()

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_routerSetup_planRoundTrip(t *testing.T) {
	server := newTestServer(t, "")
	router := server.routerSetup()

	plan := `{"plan_name":"Spring 10K","plan_start_date":"2024-05-06","weeks":[{"week_number":1,"runs":[{"date":"2024-05-06","day_of_week":"Monday","type":"easy","distance_km":5}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/plans?id=spring", strings.NewReader(plan))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/plans/spring", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Spring 10K")
}

func TestServer_routerSetup_corsRejectsUnknownOrigin(t *testing.T) {
	server := newTestServer(t, "")
	router := server.routerSetup()

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
