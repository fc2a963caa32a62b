package integration_testing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/2beens/runcoach/internal"
	"github.com/2beens/runcoach/internal/config"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	log "github.com/sirupsen/logrus"
)

const (
	serverPort  = 9000
	metricsPort = 9001
	serverHost  = "localhost"
	apiToken    = "integration-token"

	syncRateLimitPerMin = 3
)

var serverEndpoint = fmt.Sprintf("http://%s:%d", serverHost, serverPort)

type Suite struct {
	dockerPool *dockertest.Pool
	server     *internal.Server
	strava     *httptest.Server
	dataDir    string
	teardown   []func()
}

func newSuite(ctx context.Context) (_ *Suite) {
	var err error
	suite := &Suite{
		teardown: make([]func(), 0),
	}

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	suite.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}

	// uses pool to try to connect to Docker
	if err = suite.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}

	redisPort, err := suite.redisSetup()
	if err != nil {
		suite.cleanup()
		log.Fatalf("failed to setup redis: %s", err.Error())
	}

	suite.strava = httptest.NewServer(fakeStravaHandler(time.Now()))
	suite.teardown = append(suite.teardown, suite.strava.Close)

	suite.dataDir, err = os.MkdirTemp("", "runcoach-integration")
	if err != nil {
		suite.cleanup()
		log.Fatalf("create data dir: %s", err)
	}
	suite.teardown = append(suite.teardown, func() {
		_ = os.RemoveAll(suite.dataDir)
	})

	cfg := getTestConfig(redisPort, suite.strava.URL, suite.dataDir)
	suite.server, err = internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:      cfg,
			VersionInfo: "test-version-info",
		},
	)
	if err != nil {
		suite.cleanup()
		log.Fatalf("new server: %s", err)
	}

	suite.server.Serve(cfg.Host, cfg.Port)

	return suite
}

func (s *Suite) cleanup() {
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	for _, teardown := range s.teardown {
		teardown()
	}
}

func getTestConfig(redisPort, stravaURL, dataDir string) *config.Config {
	return &config.Config{
		Environment:           "development",
		Host:                  serverHost,
		Port:                  serverPort,
		MetricsPort:           metricsPort,
		DataDir:               dataDir,
		RedisHost:             "localhost",
		RedisPort:             mustAtoi(redisPort),
		SyncLookbackWeeks:     config.DefaultSyncLookbackWeeks,
		ActivityLimit:         config.DefaultActivityLimit,
		UpcomingDays:          config.DefaultUpcomingDays,
		ReportCacheTTLSeconds: config.DefaultReportCacheTTLSeconds,
		ReportCacheSizeMB:     config.DefaultReportCacheSizeMB,
		SyncLockTTLSeconds:    config.DefaultSyncLockTTLSeconds,
		SyncRateLimitPerMin:   syncRateLimitPerMin,
		StravaBaseURL:         stravaURL + "/api/v3",
		StravaTokenURL:        stravaURL + "/oauth/token",
		StravaTimeoutSeconds:  5,
		StravaClientID:        "client-id",
		StravaClientSecret:    "client-secret",
		StravaRefreshToken:    "refresh-me",
		APIToken:              apiToken,
	}
}

func mustAtoi(s string) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		log.Fatalf("invalid port %q: %s", s, err)
	}
	return n
}

func (s *Suite) redisSetup() (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Name:       "runcoach-redis",
		Tag:        "6.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		redisResource.Close()
	})

	return redisResource.GetPort("6379/tcp"), nil
}

// fakeStravaHandler serves two runs and a ride, all within the sync lookback of now.
func fakeStravaHandler(now time.Time) http.Handler {
	day := func(daysAgo int) string {
		return now.UTC().AddDate(0, 0, -daysAgo).Format("2006-01-02") + "T07:00:00Z"
	}
	activities := fmt.Sprintf(`[
		{"id": 101, "name": "Easy Run", "sport_type": "Run", "start_date": %q,
		 "distance": 8000, "moving_time": 2800, "elapsed_time": 2900, "average_speed": 2.86},
		{"id": 102, "name": "Tempo Run", "sport_type": "Run", "start_date": %q,
		 "distance": 10000, "moving_time": 2900, "elapsed_time": 3000, "average_speed": 3.45},
		{"id": 103, "name": "Commute", "sport_type": "Ride", "start_date": %q, "distance": 15000}
	]`, day(2), day(4), day(3))

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-me","expires_in":21600}`))
	})
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(activities))
	})
	mux.HandleFunc("/api/v3/activities/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/laps"):
			_, _ = w.Write([]byte(`[{"id": 1, "lap_index": 1, "distance": 1000, "moving_time": 300, "average_heartrate": 148}]`))
		case strings.HasSuffix(r.URL.Path, "/streams"):
			_, _ = w.Write([]byte(`{"heartrate": {"data": [140, 150]}}`))
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}
