package runs

//go:generate mockgen -source=source.go -destination=source_mocks_test.go -package=runs

import (
	"context"
	"encoding/json"
	"time"
)

// Source is the remote activity provider the sync pulls from.
type Source interface {
	ListActivities(ctx context.Context, after time.Time, limit int) ([]Activity, error)
	GetLaps(ctx context.Context, id int64) ([]Lap, error)
	GetStreams(ctx context.Context, id int64, keys []string) (map[string]json.RawMessage, error)
}

// Cache is the part of the activity store the sync writes through.
type Cache interface {
	Exists(ctx context.Context) (map[int64]struct{}, error)
	Store(ctx context.Context, activity *Activity) error
}
