package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/runcoach/internal/telemetry/metrics"
	"github.com/2beens/runcoach/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// StreamKeys are the time series fetched for every new activity.
var StreamKeys = []string{"heartrate", "pace", "altitude", "cadence"}

const DefaultActivityLimit = 200

// Syncer pulls new running activities from a remote source into the local cache.
// Activities already cached are never fetched again.
type Syncer struct {
	source         Source
	cache          Cache
	limit          int
	metricsManager *metrics.Manager
	now            func() time.Time
}

func NewSyncer(
	source Source,
	cache Cache,
	limit int,
	metricsManager *metrics.Manager,
) *Syncer {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return &Syncer{
		source:         source,
		cache:          cache,
		limit:          limit,
		metricsManager: metricsManager,
		now:            time.Now,
	}
}

// Sync stores every running activity started within lookback that is not cached yet,
// and returns how many were stored. A failing store stops the sync; what was stored
// before stays in place and a rerun picks up the rest.
func (s *Syncer) Sync(ctx context.Context, lookback time.Duration) (stored int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncer.sync")
	start := time.Now()
	defer func() {
		s.metricsManager.HistSyncDuration.Observe(time.Since(start).Seconds())
		s.metricsManager.CounterSyncedActivities.Add(float64(stored))
		if err != nil {
			s.metricsManager.CounterSyncs.WithLabelValues("error").Inc()
		} else {
			s.metricsManager.CounterSyncs.WithLabelValues("ok").Inc()
		}
		span.SetAttributes(attribute.Int("sync.stored", stored))
		tracing.EndSpanWithErrCheck(span, err)
	}()

	after := s.now().Add(-lookback)
	fetched, err := s.source.ListActivities(ctx, after, s.limit)
	if err != nil {
		return 0, fmt.Errorf("list activities: %w", err)
	}

	existing, err := s.cache.Exists(ctx)
	if err != nil {
		return 0, fmt.Errorf("existing activities: %w", err)
	}

	newRuns := make([]Activity, 0, len(fetched))
	for _, a := range fetched {
		if !a.IsRun() {
			continue
		}
		if _, ok := existing[a.ID]; ok {
			continue
		}
		newRuns = append(newRuns, a)
	}

	log.Infof("sync: %d fetched, %d already cached, %d new runs since %s",
		len(fetched), len(existing), len(newRuns), after.Format(time.DateOnly))
	span.SetAttributes(
		attribute.Int("sync.fetched", len(fetched)),
		attribute.Int("sync.new", len(newRuns)),
	)

	for i := range newRuns {
		run := &newRuns[i]
		if run.ID == 0 {
			log.Warnf("sync: skipping activity [%s] without id", run.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		s.fetchDetails(ctx, run)

		if err := s.cache.Store(ctx, run); err != nil {
			return stored, fmt.Errorf("store activity %d: %w", run.ID, err)
		}
		stored++
		log.Debugf("sync: [%d/%d] stored %s (%s) %.2fkm",
			i+1, len(newRuns), run.Name, run.Day(), run.Distance/1000)
	}

	return stored, nil
}

// fetchDetails attaches laps and streams. Failures are logged, never returned:
// laps fall back to an empty list and streams to none.
func (s *Syncer) fetchDetails(ctx context.Context, run *Activity) {
	var detailErr error

	streams, err := s.source.GetStreams(ctx, run.ID, StreamKeys)
	if err != nil {
		s.metricsManager.CounterDetailFailures.WithLabelValues("streams").Inc()
		detailErr = multierr.Append(detailErr, fmt.Errorf("streams: %w", err))
		streams = nil
	}
	run.Streams = streams

	laps, err := s.source.GetLaps(ctx, run.ID)
	if err != nil {
		s.metricsManager.CounterDetailFailures.WithLabelValues("laps").Inc()
		detailErr = multierr.Append(detailErr, fmt.Errorf("laps: %w", err))
		laps = nil
	}
	if laps == nil {
		laps = []Lap{}
	}
	run.Laps = laps

	if detailErr != nil {
		log.Warnf("sync: activity [%d] stored with partial details: %s", run.ID, detailErr)
	}
}
