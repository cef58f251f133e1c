package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pkgredis "github.com/corbeille/corbeille-backend/pkg/redis"
)

const lockScope = "cron"

// Lock coordinates exclusive cron cycles across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type entityLocker interface {
	Acquire(ctx context.Context, scope, id string) (func(context.Context) error, error)
}

// RedisLock holds one named cycle lock on top of the shared entity locker.
type RedisLock struct {
	locker  entityLocker
	name    string
	mu      sync.Mutex
	release func(context.Context) error
}

func NewRedisLock(locker entityLocker, name string) (*RedisLock, error) {
	if locker == nil {
		return nil, errors.New("locker required")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	return &RedisLock{locker: locker, name: name}, nil
}

// Acquire reports false when another replica owns the cycle.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	release, err := l.locker.Acquire(ctx, lockScope, l.name)
	if errors.Is(err, pkgredis.ErrLockHeld) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.name, err)
	}
	l.mu.Lock()
	l.release = release
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	release := l.release
	l.release = nil
	l.mu.Unlock()
	if release == nil {
		return nil
	}
	return release(ctx)
}
