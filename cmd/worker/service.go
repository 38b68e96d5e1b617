package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type consumer interface {
	Run(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies map[string]pinger
	Consumers    map[string]consumer
}

// Service runs the subscription consumers side by side. When one stops, for
// any reason, the rest are stopped too and the process exits.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers map[string]consumer
}

var errConsumerReturned = errors.New("consumer returned")

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(p.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range p.Consumers {
		if c == nil {
			return nil, fmt.Errorf("%s consumer is nil", name)
		}
	}
	return &Service{logg: p.Logger, deps: p.Dependencies, consumers: p.Consumers}, nil
}

func (s *Service) Run(ctx context.Context) error {
	for _, name := range slices.Sorted(maps.Keys(s.deps)) {
		if err := s.deps[name].Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		group.Go(func() error {
			logCtx := s.logg.WithField(groupCtx, "consumer", name)
			s.logg.Info(logCtx, "consumer started")
			err := c.Run(groupCtx)
			s.logg.Info(logCtx, "consumer stopped")
			if err == nil || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", name, errConsumerReturned)
			}
			return fmt.Errorf("%s consumer: %w", name, err)
		})
	}

	err := group.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
