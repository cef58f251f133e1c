package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 30 * time.Second

// ErrLockHeld is returned when another worker owns the entity lock.
var ErrLockHeld = errors.New("lock held by another owner")

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// EntityLocker hands out short-lived exclusive locks keyed by entity id.
type EntityLocker struct {
	store lockStore
	ttl   time.Duration
}

// NewEntityLocker constructs a Redis-backed locker.
func NewEntityLocker(store lockStore, ttl time.Duration) (*EntityLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &EntityLocker{store: store, ttl: ttl}, nil
}

// Acquire takes the lock for scope/id. The returned func releases it and is
// safe to call after the TTL expired. ErrLockHeld means someone else has it.
func (l *EntityLocker) Acquire(ctx context.Context, scope, id string) (func(context.Context) error, error) {
	if id == "" {
		return nil, errors.New("lock id is required")
	}
	key := l.store.LockKey(scope, id)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(releaseCtx context.Context) error {
		if _, err := l.store.DelIfValue(releaseCtx, key, owner); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
