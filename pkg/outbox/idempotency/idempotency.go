// Package idempotency lets Pub/Sub consumers of storefront events skip
// redeliveries. Pub/Sub delivers at least once and the outbox publisher may
// send a row twice after a crash, so every consumer claims an event id before
// acting on it.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

var (
	errConsumerRequired = errors.New("consumer name is required")
	errEventRequired    = errors.New("event id is required")
)

type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager keeps claims for ttl. Zero keeps them until evicted.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim reports whether this delivery is the first one consumer sees for
// eventID. Keys look like `sf:evt:<consumer>:<event_id>`.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim after the consumer failed, so the redelivery is
// handled instead of skipped.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errConsumerRequired
	case eventID == uuid.Nil:
		return "", errEventRequired
	}
	return m.store.Key(redis.ScopeEvent, consumer, eventID.String()), nil
}
