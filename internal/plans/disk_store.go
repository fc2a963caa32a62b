package plans

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
	"strings"
	"sync"
	"time"

	"github.com/2beens/runcoach/internal/telemetry/tracing"
	"github.com/2beens/runcoach/pkg"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrPlanNotFound  = errors.New("plan not found")
	ErrInvalidPlan   = errors.New("invalid plan")
	ErrInvalidPlanID = errors.New("invalid plan id")
)

const (
	filePrefix = "plan_"
	fileSuffix = ".json"
	idLength   = 8
)

// DiskStore keeps one JSON file per plan, plan_<id>.json, in a single directory.
type DiskStore struct {
	dir   string
	mutex sync.RWMutex
	now   func() time.Time
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("plans dir cannot be empty")
	}
	if err := pkg.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure plans dir: %w", err)
	}
	return &DiskStore{
		dir: dir,
		now: time.Now,
	}, nil
}

func (s *DiskStore) Dir() string {
	return s.dir
}

func NewPlanID() string {
	return uuid.NewString()[:idLength]
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPlanID, id)
	}
	return nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, filePrefix+id+fileSuffix)
}

func (s *DiskStore) timestamp() string {
	return s.now().Format(time.RFC3339)
}

// Save stores the plan and returns its id: the explicit id when given, else
// plan.ID, else a freshly generated one. created_at survives re-saves.
func (s *DiskStore) Save(ctx context.Context, plan *Plan, id string) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "plansDiskStore.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if plan == nil {
		return "", fmt.Errorf("%w: plan is nil", ErrInvalidPlan)
	}
	if id == "" {
		id = plan.ID
	}
	if id == "" {
		id = NewPlanID()
	}
	if err := validateID(id); err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("plan.id", id))

	toSave := *plan
	toSave.ID = id
	if err := toSave.Validate(); err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if toSave.CreatedAt == "" {
		existing, err := s.read(id)
		switch {
		case err == nil && existing.CreatedAt != "":
			toSave.CreatedAt = existing.CreatedAt
		case err != nil && !errors.Is(err, ErrPlanNotFound):
			return "", err
		default:
			toSave.CreatedAt = s.timestamp()
		}
	}
	toSave.UpdatedAt = s.timestamp()

	if err := pkg.WriteJSONFileAtomic(s.path(id), &toSave); err != nil {
		return "", fmt.Errorf("save plan %s: %w", id, err)
	}

	log.Debugf("plans store: plan [%s] saved", id)
	return id, nil
}

// Get returns ErrPlanNotFound for missing or malformed records.
func (s *DiskStore) Get(ctx context.Context, id string) (_ *Plan, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "plansDiskStore.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan.id", id))

	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.read(id)
}

func (s *DiskStore) readRaw(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return content, nil
}

func (s *DiskStore) read(id string) (*Plan, error) {
	return s.readFile(s.path(id))
}

func (s *DiskStore) readFile(path string) (*Plan, error) {
	content, err := s.readRaw(path)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(content, &plan); err != nil {
		log.Warnf("plans store: malformed plan file %s: %s", filepath.Base(path), err)
		return nil, ErrPlanNotFound
	}
	if plan.ID == "" {
		plan.ID = strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
	}
	return &plan, nil
}

// List returns plan summaries ordered by race date, plans without a race date first.
func (s *DiskStore) List(ctx context.Context) (_ []Summary, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "plansDiskStore.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read plans dir: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		plan, err := s.readFile(filepath.Join(s.dir, name))
		if errors.Is(err, ErrPlanNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, plan.Summary())
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := cmp.Compare(a.RaceDate, b.RaceDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	span.SetAttributes(attribute.Int("plans.count", len(summaries)))

	return summaries, nil
}

// Update deep merges partial into the stored plan. The merged document has to
// still be a valid plan, otherwise ErrInvalidPlan is returned and nothing is written.
// The stored id never changes.
func (s *DiskStore) Update(ctx context.Context, id string, partial map[string]any) (_ *Plan, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "plansDiskStore.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan.id", id))

	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	content, err := s.readRaw(s.path(id))
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(content, &doc); err != nil || doc == nil {
		log.Warnf("plans store: malformed plan file for [%s], cannot update", id)
		return nil, ErrPlanNotFound
	}

	DeepMerge(doc, partial)
	doc["id"] = id
	doc["updated_at"] = s.timestamp()

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, err)
	}
	var plan Plan
	if err := json.Unmarshal(merged, &plan); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if err := pkg.WriteJSONFileAtomic(s.path(id), &plan); err != nil {
		return nil, fmt.Errorf("update plan %s: %w", id, err)
	}

	log.Debugf("plans store: plan [%s] updated", id)
	return &plan, nil
}

// Delete reports whether a plan existed and was removed.
func (s *DiskStore) Delete(ctx context.Context, id string) (_ bool, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "plansDiskStore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan.id", id))

	if err := validateID(id); err != nil {
		return false, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete plan %s: %w", id, err)
	}

	log.Debugf("plans store: plan [%s] deleted", id)
	return true, nil
}

// ActivePlan returns the first active plan in List order.
func (s *DiskStore) ActivePlan(ctx context.Context) (*Plan, error) {
	summaries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		if summary.IsActive {
			return s.Get(ctx, summary.ID)
		}
	}
	return nil, ErrPlanNotFound
}
