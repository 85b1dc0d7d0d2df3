package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/instance"
)

const defaultLeaseTTL = 10 * time.Minute

// Lock lets one cron worker per environment run a cycle.
type Lock interface {
	// Hold runs fn while holding the lock and reports false, without
	// running fn, when another worker holds it.
	Hold(ctx context.Context, fn func(context.Context) error) (bool, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLease is a Lock stored under a single key. The value names the holder
// so a worker whose lease expired never deletes its successor's.
type RedisLease struct {
	store  leaseStore
	key    string
	ttl    time.Duration
	holder func() string
}

func NewRedisLease(store leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{
		store:  store,
		key:    key,
		ttl:    ttl,
		holder: func() string { return instance.GetID() + "/" + uuid.NewString() },
	}, nil
}

func (l *RedisLease) Hold(ctx context.Context, fn func(context.Context) error) (bool, error) {
	holder := l.holder()
	ok, err := l.store.SetNX(ctx, l.key, holder, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}

	runErr := fn(ctx)
	// Release even when ctx was cancelled mid-cycle.
	if err := l.release(context.WithoutCancel(ctx), holder); err != nil {
		return true, errors.Join(runErr, err)
	}
	return true, runErr
}

func (l *RedisLease) release(ctx context.Context, holder string) error {
	current, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", l.key, err)
	}
	if current != holder {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
