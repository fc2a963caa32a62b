package internal

import (
	"context"
	"fmt"

	"github.com/2beens/runcoach/internal/coach"
	"github.com/2beens/runcoach/internal/config"
	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/internal/strava"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// NewRedisClient returns nil when no redis host is configured.
func NewRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled() {
		log.Debugln("redis not configured, using in-process sync lock")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	return rdb
}

// NewStravaClient returns nil when the Strava credentials are incomplete.
func NewStravaClient(ctx context.Context, cfg *config.Config) *strava.Client {
	if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" || cfg.StravaRefreshToken == "" {
		log.Warnln("strava credentials not set, use STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and STRAVA_REFRESH_TOKEN; syncing is disabled")
		return nil
	}
	return strava.NewClient(ctx, StravaConfig(cfg))
}

func StravaConfig(cfg *config.Config) strava.Config {
	return strava.Config{
		BaseURL:      cfg.StravaBaseURL,
		AuthURL:      cfg.StravaAuthURL,
		TokenURL:     cfg.StravaTokenURL,
		RedirectURL:  cfg.StravaRedirectURL,
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RefreshToken: cfg.StravaRefreshToken,
		Timeout:      cfg.StravaTimeout(),
	}
}

type NewCoachServiceParams struct {
	Config         *config.Config
	MetricsManager *metrics.Manager
	// RedisClient is optional; without it syncs are only exclusive within this process.
	RedisClient *redis.Client
}

// NewCoachService wires the stores, the Strava source and the sync lock from config.
func NewCoachService(ctx context.Context, params NewCoachServiceParams) (*coach.Service, error) {
	cfg := params.Config

	activities, err := runs.NewDiskStore(cfg.RunsDir())
	if err != nil {
		return nil, fmt.Errorf("new runs store: %w", err)
	}
	planStore, err := plans.NewDiskStore(cfg.PlansDir())
	if err != nil {
		return nil, fmt.Errorf("new plans store: %w", err)
	}

	var locker coach.Locker = coach.NewLocalLocker()
	if params.RedisClient != nil {
		locker = coach.NewRedisLocker(params.RedisClient, cfg.SyncLockTTL())
	}

	serviceParams := coach.ServiceParams{
		Activities:        activities,
		Plans:             planStore,
		Locker:            locker,
		MetricsManager:    params.MetricsManager,
		SyncLookback:      cfg.SyncLookback(),
		ActivityLimit:     cfg.ActivityLimit,
		UpcomingDays:      cfg.UpcomingDays,
		ReportCacheSizeMB: cfg.ReportCacheSizeMB,
		ReportCacheTTL:    cfg.ReportCacheTTL(),
	}
	// keep a nil *strava.Client out of the interface
	if client := NewStravaClient(ctx, cfg); client != nil {
		serviceParams.Source = client
	}

	log.Debugf("runs dir: [%s], plans dir: [%s]", activities.Dir(), planStore.Dir())
	return coach.NewService(serviceParams), nil
}
