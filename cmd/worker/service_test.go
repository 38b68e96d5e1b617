package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConsumer struct {
	err     error
	blocked bool
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	if f.blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func newTestService(t *testing.T, deps map[string]pinger, consumers map[string]consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:       logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		Dependencies: deps,
		Consumers:    consumers,
	})
	require.NoError(t, err)
	return svc
}

func TestRunFailsWhenDependencyUnready(t *testing.T) {
	svc := newTestService(t,
		map[string]pinger{"db": fakePinger{}, "redis": fakePinger{err: errors.New("down")}},
		map[string]consumer{"notifications": &fakeConsumer{blocked: true}})

	require.ErrorContains(t, svc.Run(context.Background()), "redis not ready")
}

func TestRunReturnsFirstConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := newTestService(t, map[string]pinger{"db": fakePinger{}}, map[string]consumer{
		"notifications": &fakeConsumer{blocked: true},
		"analytics":     &fakeConsumer{err: boom},
	})

	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestConsumerReturningCleanlyStopsWorker(t *testing.T) {
	svc := newTestService(t, nil, map[string]consumer{
		"notifications": &fakeConsumer{blocked: true},
		"analytics":     &fakeConsumer{},
	})

	err := svc.Run(context.Background())
	require.ErrorIs(t, err, errConsumerReturned)
	require.ErrorContains(t, err, "analytics")
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := newTestService(t, nil, map[string]consumer{"notifications": &fakeConsumer{blocked: true}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
	_, err := NewService(ServiceParams{Logger: logg})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logg, Consumers: map[string]consumer{"x": nil}})
	require.ErrorContains(t, err, "x consumer is nil")
	_, err = NewService(ServiceParams{Consumers: map[string]consumer{"x": &fakeConsumer{}}})
	require.Error(t, err)
}
