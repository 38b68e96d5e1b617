package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockReleasesOnlyItsOwnToken(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "df:cron-worker:lock:test", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "df:cron-worker:lock:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLockTTL, store.ttls["df:cron-worker:lock:test"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "df:cron-worker:lock:test")

	_, err = first.Acquire(ctx)
	require.Error(t, err, "re-acquiring a held lock is a bug")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.values, "df:cron-worker:lock:test")
	require.NoError(t, first.Release(ctx))
}

func TestRedisLockSurfacesStoreErrors(t *testing.T) {
	store := newMemoryLockStore()
	store.err = errors.New("connection refused")
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.ErrorContains(t, err, "connection refused")

	_, err = NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(store, "", 0)
	require.Error(t, err)
}
