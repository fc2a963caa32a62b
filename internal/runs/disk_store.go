package runs

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/2beens/runcoach/internal/telemetry/tracing"
	"github.com/2beens/runcoach/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrActivityNotFound = errors.New("activity not found")

const (
	filePrefix = "run_"
	fileSuffix = ".json"
)

// DiskStore keeps one JSON file per activity, run_<id>.json, in a single directory.
type DiskStore struct {
	dir   string
	mutex sync.RWMutex
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("runs dir cannot be empty")
	}
	if err := pkg.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure runs dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) path(id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, id, fileSuffix))
}

// idFromFileName parses run_<id>.json, ok is false for any other name.
func idFromFileName(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Exists returns every identifier currently persisted, derived from the file names.
func (s *DiskStore) Exists(ctx context.Context) (_ map[int64]struct{}, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "runsDiskStore.exists")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	ids := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := idFromFileName(entry.Name()); ok {
			ids[id] = struct{}{}
		}
	}
	span.SetAttributes(attribute.Int("runs.count", len(ids)))

	return ids, nil
}

// Store writes the record for activity.ID, fully replacing any previous one.
func (s *DiskStore) Store(ctx context.Context, activity *Activity) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "runsDiskStore.store")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if activity == nil {
		return errors.New("activity is nil")
	}
	if activity.ID == 0 {
		return errors.New("activity id missing")
	}
	span.SetAttributes(attribute.Int64("activity.id", activity.ID))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := pkg.WriteJSONFileAtomic(s.path(activity.ID), activity); err != nil {
		return fmt.Errorf("store activity %d: %w", activity.ID, err)
	}

	log.Debugf("runs store: activity [%d] stored", activity.ID)
	return nil
}

// Load returns ErrActivityNotFound for missing or malformed records.
func (s *DiskStore) Load(ctx context.Context, id int64) (_ *Activity, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "runsDiskStore.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.readFile(s.path(id))
}

func (s *DiskStore) readFile(path string) (*Activity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("read activity file: %w", err)
	}

	var activity Activity
	if err := json.Unmarshal(content, &activity); err != nil {
		log.Warnf("runs store: malformed activity file %s: %s", filepath.Base(path), err)
		return nil, ErrActivityNotFound
	}
	return &activity, nil
}

// LoadAll returns every readable activity, most recent start date first.
// Activities without a usable start date go last.
func (s *DiskStore) LoadAll(ctx context.Context) (_ []Activity, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "runsDiskStore.loadAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	activities := make([]Activity, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := idFromFileName(entry.Name()); !ok {
			continue
		}
		activity, err := s.readFile(filepath.Join(s.dir, entry.Name()))
		if errors.Is(err, ErrActivityNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}

	SortByStartDesc(activities)
	span.SetAttributes(attribute.Int("runs.count", len(activities)))

	return activities, nil
}

// Delete reports whether a record existed and was removed.
func (s *DiskStore) Delete(ctx context.Context, id int64) (_ bool, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "runsDiskStore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete activity %d: %w", id, err)
	}

	log.Debugf("runs store: activity [%d] deleted", id)
	return true, nil
}

// SortByStartDesc orders activities by start date, most recent first.
// Missing or unparseable dates sort last; ties fall back to the id, highest first.
func SortByStartDesc(activities []Activity) {
	slices.SortStableFunc(activities, func(a, b Activity) int {
		at, aOk := a.StartTime()
		bt, bOk := b.StartTime()
		switch {
		case aOk && !bOk:
			return -1
		case !aOk && bOk:
			return 1
		case aOk && bOk && !at.Equal(bt):
			return bt.Compare(at)
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
