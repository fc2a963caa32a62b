package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/runcoach/internal/adherence"
	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/report"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/internal/telemetry/metrics"
	"github.com/2beens/runcoach/internal/telemetry/tracing"
	"github.com/2beens/runcoach/pkg"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrSourceNotConfigured = errors.New("strava client not configured: set STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and STRAVA_REFRESH_TOKEN")
	ErrInvalidRange        = errors.New("invalid date range")
)

const (
	megabyte = 1024 * 1024

	defaultReportCacheTTL = 5 * time.Minute
	defaultRecentDays     = 7
	defaultRecentLimit    = 10
	defaultRangeLimit     = 30

	reportCacheKey = "report::all"
	noRunsMessage  = "No run data found. Make sure you have running activities on Strava."
)

// DefaultStreamTypes are fetched when no stream types are asked for.
var DefaultStreamTypes = []string{"heartrate", "pace"}

// RemoteSource is the remote provider: what the sync needs plus direct lookups.
type RemoteSource interface {
	runs.Source
	ListActivitiesBetween(ctx context.Context, after, before time.Time, limit int) ([]runs.Activity, error)
	GetActivity(ctx context.Context, id int64) (*runs.Activity, error)
}

type activitySyncer interface {
	Sync(ctx context.Context, lookback time.Duration) (int, error)
}

type ServiceParams struct {
	// Source is nil when no Strava credentials are configured;
	// everything except syncing and remote listing still works then.
	Source         RemoteSource
	Activities     *runs.DiskStore
	Plans          *plans.DiskStore
	Locker         Locker
	MetricsManager *metrics.Manager

	SyncLookback      time.Duration
	ActivityLimit     int
	UpcomingDays      int
	ReportCacheSizeMB int
	ReportCacheTTL    time.Duration
}

// Service is what the HTTP API, the MCP tools and the CLI share.
type Service struct {
	source         RemoteSource
	syncer         activitySyncer
	activities     *runs.DiskStore
	plans          *plans.DiskStore
	matcher        *adherence.Matcher
	locker         Locker
	metricsManager *metrics.Manager

	lookback          time.Duration
	reportCache       *freecache.Cache
	reportCacheExpire int // seconds

	now func() time.Time
}

func NewService(params ServiceParams) *Service {
	cacheSizeMB := params.ReportCacheSizeMB
	if cacheSizeMB <= 0 {
		cacheSizeMB = 10
	}
	cacheTTL := params.ReportCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultReportCacheTTL
	}
	locker := params.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}

	s := &Service{
		source:            params.Source,
		activities:        params.Activities,
		plans:             params.Plans,
		matcher:           adherence.NewMatcher(params.UpcomingDays),
		locker:            locker,
		metricsManager:    params.MetricsManager,
		lookback:          params.SyncLookback,
		reportCache:       freecache.NewCache(cacheSizeMB * megabyte),
		reportCacheExpire: int(cacheTTL.Seconds()),
		now:               time.Now,
	}
	if params.Source != nil {
		s.syncer = runs.NewSyncer(params.Source, params.Activities, params.ActivityLimit, params.MetricsManager)
	}

	return s
}

// Sync pulls new runs from the remote source. Only one sync runs at a time;
// a concurrent call gets ErrSyncInProgress.
func (s *Service) Sync(ctx context.Context) (stored int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.sync")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if s.syncer == nil {
		return 0, ErrSourceNotConfigured
	}

	locked, err := s.locker.TryLock(ctx, syncLockKey)
	if err != nil {
		return 0, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return 0, ErrSyncInProgress
	}
	defer func() {
		if unlockErr := s.locker.Unlock(context.WithoutCancel(ctx), syncLockKey); unlockErr != nil {
			log.Errorf("coach: release sync lock: %s", unlockErr)
		}
	}()

	stored, err = s.syncer.Sync(ctx, s.lookback)
	span.SetAttributes(attribute.Int("sync.stored", stored))
	if stored > 0 {
		s.invalidateReport()
	}
	if err != nil {
		return stored, fmt.Errorf("sync activities: %w", err)
	}

	s.refreshCachedGauge(ctx)
	return stored, nil
}

func (s *Service) refreshCachedGauge(ctx context.Context) {
	ids, err := s.activities.Exists(ctx)
	if err != nil {
		log.Warnf("coach: count cached activities: %s", err)
		return
	}
	s.metricsManager.GaugeCachedActivity.Set(float64(len(ids)))
}

func (s *Service) invalidateReport() {
	s.reportCache.Del([]byte(reportCacheKey))
}

type TrainingReport struct {
	Data           *report.Report `json:"data"`
	NewRunsFetched *int           `json:"new_runs_fetched,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// TrainingReport builds the report over every cached run, syncing first when refresh is set.
func (s *Service) TrainingReport(ctx context.Context, refresh bool) (_ *TrainingReport, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.trainingReport")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	result := &TrainingReport{}
	if refresh {
		stored, err := s.Sync(ctx)
		if err != nil {
			return nil, err
		}
		result.NewRunsFetched = &stored
	}

	rep, err := s.report(ctx)
	if err != nil {
		return nil, err
	}
	result.Data = rep
	if len(rep.IndividualRuns) == 0 {
		result.Message = noRunsMessage
	}

	return result, nil
}

func (s *Service) report(ctx context.Context) (*report.Report, error) {
	if reportBytes, err := s.reportCache.Get([]byte(reportCacheKey)); err == nil {
		rep := &report.Report{}
		if err := json.Unmarshal(reportBytes, rep); err == nil {
			s.metricsManager.CounterReportCache.WithLabelValues("hit").Inc()
			return rep, nil
		} else {
			log.Errorf("coach: unmarshal cached report: %s", err)
		}
	}
	s.metricsManager.CounterReportCache.WithLabelValues("miss").Inc()

	activities, err := s.activities.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached runs: %w", err)
	}
	rep := report.Build(activities)

	reportBytes, err := json.Marshal(rep)
	if err != nil {
		log.Errorf("coach: marshal report: %s", err)
		return rep, nil
	}
	if err := s.reportCache.Set([]byte(reportCacheKey), reportBytes, s.reportCacheExpire); err != nil {
		log.Warnf("coach: cache report: %s", err)
	}

	return rep, nil
}

// CachedRuns lists cached runs, most recent first. limit <= 0 returns all of them.
func (s *Service) CachedRuns(ctx context.Context, limit int) ([]report.RunDetail, error) {
	activities, err := s.activities.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached runs: %w", err)
	}
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}

	details := make([]report.RunDetail, 0, len(activities))
	for i := range activities {
		details = append(details, report.Run(&activities[i]))
	}
	return details, nil
}

// Run returns the full cached record, streams included.
func (s *Service) Run(ctx context.Context, id int64) (*runs.Activity, error) {
	return s.activities.Load(ctx, id)
}

func (s *Service) DeleteRun(ctx context.Context, id int64) error {
	deleted, err := s.activities.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return runs.ErrActivityNotFound
	}
	s.invalidateReport()
	return nil
}

// RecentActivities lists activities of any sport straight from the remote source,
// without caching them.
func (s *Service) RecentActivities(ctx context.Context, days, limit int) (_ []runs.Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.recentActivities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}
	if days <= 0 {
		days = defaultRecentDays
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	after := s.now().AddDate(0, 0, -days)
	activities, err := s.source.ListActivities(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []runs.Activity{}
	}
	return activities, nil
}

// Activities lists the latest activities of any sport straight from the remote source.
func (s *Service) Activities(ctx context.Context, limit int) (_ []runs.Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.activities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return nonNil(s.source.ListActivitiesBetween(ctx, time.Time{}, time.Time{}, limit))
}

// ActivitiesBetween lists remote activities started on startDate through endDate
// (YYYY-MM-DD, both inclusive, in the service's local time).
func (s *Service) ActivitiesBetween(ctx context.Context, startDate, endDate string, limit int) (_ []runs.Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.activitiesBetween")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("range.start", startDate), attribute.String("range.end", endDate))

	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}
	start, err := pkg.ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start date: %w", ErrInvalidRange, err)
	}
	end, err := pkg.ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end date: %w", ErrInvalidRange, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRange, endDate, startDate)
	}
	if limit <= 0 {
		limit = defaultRangeLimit
	}

	loc := s.now().Location()
	after := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	before := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	return nonNil(s.source.ListActivitiesBetween(ctx, after, before, limit))
}

// RemoteActivity fetches one activity of any sport from the remote source, bypassing the cache.
func (s *Service) RemoteActivity(ctx context.Context, id int64) (*runs.Activity, error) {
	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}
	return s.source.GetActivity(ctx, id)
}

// ActivityStreams fetches time series of one remote activity keyed by type.
// Empty streamTypes asks for DefaultStreamTypes.
func (s *Service) ActivityStreams(ctx context.Context, id int64, streamTypes []string) (_ map[string]json.RawMessage, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.activityStreams")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}

	keys := make([]string, 0, len(streamTypes))
	for _, streamType := range streamTypes {
		if streamType = strings.TrimSpace(streamType); streamType != "" {
			keys = append(keys, streamType)
		}
	}
	if len(keys) == 0 {
		keys = DefaultStreamTypes
	}

	streams, err := s.source.GetStreams(ctx, id, keys)
	if err != nil {
		return nil, err
	}
	if streams == nil {
		streams = map[string]json.RawMessage{}
	}
	return streams, nil
}

func nonNil(activities []runs.Activity, err error) ([]runs.Activity, error) {
	if err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []runs.Activity{}
	}
	return activities, nil
}

func (s *Service) SavePlan(ctx context.Context, plan *plans.Plan, id string) (string, error) {
	return s.plans.Save(ctx, plan, id)
}

func (s *Service) ListPlans(ctx context.Context) ([]plans.Summary, error) {
	return s.plans.List(ctx)
}

func (s *Service) GetPlan(ctx context.Context, id string) (*plans.Plan, error) {
	return s.plans.Get(ctx, id)
}

func (s *Service) UpdatePlan(ctx context.Context, id string, partial map[string]any) (*plans.Plan, error) {
	return s.plans.Update(ctx, id, partial)
}

func (s *Service) DeletePlan(ctx context.Context, id string) error {
	deleted, err := s.plans.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return plans.ErrPlanNotFound
	}
	return nil
}

// Adherence matches the plan against every cached run. An empty planID picks the active plan.
func (s *Service) Adherence(ctx context.Context, planID string) (_ *adherence.Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coach.adherence")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var plan *plans.Plan
	if planID == "" {
		plan, err = s.plans.ActivePlan(ctx)
	} else {
		plan, err = s.plans.Get(ctx, planID)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	activities, err := s.activities.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached runs: %w", err)
	}

	return s.matcher.Match(plan, activities, s.now())
}
