package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxErrorBackoff    = 10 * time.Second
	pollJitter         = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events onto Pub/Sub. Rows are claimed, published and
// marked inside one transaction per batch, so a crash mid-batch releases the
// claims and the rows go out again.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	var missing error
	for name, ok := range map[string]bool{
		"logger":            p.Logger != nil,
		"database client":   p.DB != nil,
		"pubsub client":     p.PubSub != nil,
		"outbox repository": p.Repository != nil,
		"event registry":    p.Registry != nil,
		"dlq repository":    p.DLQRepository != nil,
	} {
		if !ok {
			missing = multierr.Append(missing, fmt.Errorf("%s is required", name))
		}
	}
	if missing != nil {
		return nil, missing
	}

	s := &Service{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		repo:        p.Repository,
		registry:    p.Registry,
		dlq:         p.DLQRepository,
		publishers:  p.PublisherFactory,
		metrics:     p.Metrics,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		poll:        defaultPoll,
		now:         time.Now,
	}
	if p.Outbox.BatchSize > 0 {
		s.batchSize = p.Outbox.BatchSize
	}
	if p.Outbox.MaxAttempts > 0 {
		s.maxAttempts = p.Outbox.MaxAttempts
	}
	if p.Outbox.PollIntervalMS > 0 {
		s.poll = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if s.publishers == nil {
		s.publishers = topicPublishers(p.PubSub)
	}
	return s, nil
}

// Run polls until ctx ends. A full batch is followed at once by the next;
// otherwise it sleeps one poll interval, doubled per consecutive failure up
// to maxErrorBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_size":   s.batchSize,
		"max_attempts": s.maxAttempts,
		"poll":         s.poll.String(),
	}), "outbox publisher running")

	failures := 0
	for {
		claimed, err := s.processBatch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			failures++
			s.logg.Error(s.logg.WithField(ctx, "consecutive_failures", failures), "outbox batch failed", err)
		} else {
			failures = 0
			if claimed >= s.batchSize {
				continue
			}
		}
		if err := sleep(ctx, s.backoff(failures)+rand.N(pollJitter)); err != nil {
			return err
		}
	}
}

func (s *Service) backoff(failures int) time.Duration {
	wait := s.poll
	for i := 0; i < failures && wait < maxErrorBackoff; i++ {
		wait *= 2
	}
	return min(wait, maxErrorBackoff)
}

// processBatch claims and settles up to batchSize rows, returning how many
// were claimed. An error rolls the whole batch back.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			v, err := s.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			s.metrics.IncDelivery(string(row.EventType), v.label())
		}
		return nil
	})
	s.metrics.ObserveBatch(claimed)
	return claimed, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
