package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrSyncInProgress = errors.New("sync already in progress")

const syncLockKey = "runcoach::sync::lock"

// Locker grants a named lock to one holder at a time.
type Locker interface {
	// TryLock returns false without waiting when the lock is already held.
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// only the owner that set the key may delete it
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker is shared by every process using the same Redis, so the HTTP service,
// the MCP server and the CLI never sync at the same time.
// The TTL releases the lock if a holder dies mid-sync.
type RedisLocker struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return NewRedisLockerWithOwner(rdb, ttl, uuid.NewString())
}

func NewRedisLockerWithOwner(rdb *redis.Client, ttl time.Duration, owner string) *RedisLocker {
	return &RedisLocker{
		rdb:   rdb,
		owner: owner,
		ttl:   ttl,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	if err := l.rdb.Eval(ctx, unlockScript, []string{key}, l.owner).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	return nil
}

// LocalLocker only excludes callers within this process.
type LocalLocker struct {
	mutex sync.Mutex
	held  map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]struct{}),
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.held, key)
	return nil
}
