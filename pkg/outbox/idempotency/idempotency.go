// Package idempotency dedupes Pub/Sub deliveries per consumer. Pub/Sub is
// at-least-once, so every subscriber marks an event before acting on it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// markerStore is the subset of the Redis client the manager needs.
type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager records processed event ids under
// df:idempotency:evt:<consumer>:<event_id> for ttl.
type Manager struct {
	store markerStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store markerStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("idempotency ttl must be positive, got %s", ttl)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether consumer already saw eventID. When it
// did not, the event is marked in the same round trip.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	marked, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", eventID, err)
	}
	return !marked, nil
}

// Delete forgets the mark so a redelivery is handled again. Consumers call it
// when processing failed in a way worth retrying.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "" || strings.ContainsAny(consumer, ": \t"):
		return "", fmt.Errorf("invalid consumer name %q", consumer)
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
