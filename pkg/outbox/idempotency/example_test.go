package idempotency_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/outbox/idempotency"
)

type onceStore map[string]bool

func (s onceStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s[key] {
		return false, nil
	}
	s[key] = true
	return true, nil
}

func (s onceStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s, k)
	}
	return nil
}

func (onceStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func ExampleManager_CheckAndMarkProcessed() {
	manager, _ := idempotency.NewManager(onceStore{}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for delivery := 1; delivery <= 2; delivery++ {
		seen, _ := manager.CheckAndMarkProcessed(context.Background(), "settlement-facts", eventID)
		fmt.Printf("delivery %d duplicate=%v\n", delivery, seen)
	}
	// Output:
	// delivery 1 duplicate=false
	// delivery 2 duplicate=true
}
