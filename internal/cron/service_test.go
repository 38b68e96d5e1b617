package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type stubJob struct {
	name string
	run  func(ctx context.Context) error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:     quietLogger(),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		JobTimeout: time.Second,
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceKeepsGoingPastFailures(t *testing.T) {
	ok := &stubJob{name: "deal-autocomplete"}
	failing := &stubJob{name: "settlement-sweep", run: func(context.Context) error { return errors.New("db down") }}
	panicking := &stubJob{name: "cart-reconcile", run: func(context.Context) error { panic("nil cart") }}
	last := &stubJob{name: "outbox-retention"}
	lock := &fakeLock{}

	cycle, err := newTestService(t, lock, ok, failing, panicking, last).RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, cycle.Skipped)
	require.Equal(t, []string{"deal-autocomplete", "settlement-sweep", "cart-reconcile", "outbox-retention"}, cycle.Ran)
	require.Equal(t, []string{"settlement-sweep", "cart-reconcile"}, cycle.Failed)
	require.Equal(t, 1, last.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &stubJob{name: "only"}
	lock := &fakeLock{held: true}

	cycle, err := newTestService(t, lock, job).RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, cycle.Skipped)
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestRunOnceReturnsLockErrors(t *testing.T) {
	job := &stubJob{name: "only"}
	_, err := newTestService(t, &fakeLock{err: errors.New("redis down")}, job).RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
	require.Zero(t, job.runs)
}

func TestRunJobAppliesTimeout(t *testing.T) {
	var deadline time.Time
	job := &stubJob{name: "slow", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	service := newTestService(t, &fakeLock{}, job)
	before := time.Now()
	_, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(time.Second), deadline, 500*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &stubJob{name: "once", run: func(context.Context) error {
		cancel()
		return nil
	}}
	err := newTestService(t, &fakeLock{}, job).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger()})
	require.Error(t, err)

	service, err := NewService(ServiceParams{Logger: quietLogger(), Lock: &fakeLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, service.interval)
	require.Equal(t, defaultJobTimeout, service.jobTimeout)
	require.Empty(t, service.registry.Names())
}
