package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/registry"
)

func capturedEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       envelopeBytes(t),
		AttemptCount:  attempts,
		CreatedAt:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func domainResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "dealflow-domain", AggregateType: enums.AggregatePayment},
		Envelope:   outbox.PayloadEnvelope{Version: 1},
		Payload:    &payloads.PaymentCapturedEvent{},
	}
}

func TestProcessBatchRetriesOneRowAndPublishesTheNext(t *testing.T) {
	first, second := capturedEvent(t, 0), capturedEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: domainResolution()}, &fakeDLQRepo{}, config.OutboxConfig{}, metrics.NewOutboxMetrics(reg))

	claimed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, claimed)
	require.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, repo.published)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]bool{}
	for _, mf := range mfs {
		if mf.GetName() != "dealflow_outbox_delivery_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" {
					results[l.GetValue()] = true
				}
			}
		}
	}
	require.Equal(t, map[string]bool{metrics.OutboxResultPublished: true, metrics.OutboxResultRetry: true}, results)
}

func TestPublishCarriesRoutingAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload:       envelopeBytes(t),
		CreatedAt:     time.Now(),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "dealflow-notifications", AggregateType: enums.AggregateNotification},
		Envelope:   outbox.PayloadEnvelope{Version: 1},
		Payload:    &payloads.NotificationRequestedEvent{},
	}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	var topics []string
	svc.publishers = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"dealflow-notifications"}, topics)
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	require.Equal(t, string(enums.AggregateNotification)+":"+event.AggregateID.String(), msg.OrderingKey)
	require.Equal(t, string(enums.EventNotificationRequested), msg.Attributes["event_type"])
	require.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	require.Equal(t, "1", msg.Attributes["schema_version"])
	require.Equal(t, "outbox-publisher", msg.Attributes["producer"])
	require.Equal(t, "outbox-publisher", baseAttributes["producer"], "per-message attributes must not leak into the shared map")
	require.Len(t, baseAttributes, 1)
}

func TestPermanentFailuresGoStraightToDeadLetter(t *testing.T) {
	cases := []struct {
		name     string
		resolver *fakeRegistry
		factory  publisherFactory
	}{
		{
			name:     "unresolvable row",
			resolver: &fakeRegistry{err: registry.Permanent(errors.New("unknown payload shape"))},
		},
		{
			name:     "no publisher for topic",
			resolver: &fakeRegistry{resolved: domainResolution()},
			factory:  func(string) publisher { return nil },
		},
		{
			name:     "publisher returned no result",
			resolver: &fakeRegistry{resolved: domainResolution()},
			factory:  func(string) publisher { return &fakePublisher{} },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := capturedEvent(t, 0)
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dlq := &fakeDLQRepo{}
			svc := newTestService(t, repo, &fakePublisher{}, tc.resolver, dlq, config.OutboxConfig{}, nil)
			if tc.factory != nil {
				svc.publishers = tc.factory
			}

			_, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			require.Equal(t, event.ID, entry.EventID)
			require.True(t, bytes.Equal(entry.Payload, event.Payload))
			require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
			require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
			require.Empty(t, repo.failed)
		})
	}
}

func TestLastAttemptGoesToDeadLetter(t *testing.T) {
	event := capturedEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: domainResolution()}, dlq, config.OutboxConfig{BatchSize: 1, MaxAttempts: 2}, nil)
	fixed := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	require.True(t, dlq.entries[0].FailedAt.Equal(fixed))
	require.Contains(t, *dlq.entries[0].ErrorMessage, "attempt 2 of 2")
}

func TestBookkeepingFailureAbortsBatch(t *testing.T) {
	repo := &fakeRepo{
		events:     []models.OutboxEvent{capturedEvent(t, 0)},
		publishErr: errors.New("connection reset"),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: domainResolution()}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)

	_, err := svc.processBatch(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	require.Equal(t, defaultBatchSize, svc.batchSize)
	require.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	require.Equal(t, defaultPoll, svc.poll)

	_, err := NewService(ServiceParams{Logger: svc.logg})
	require.ErrorContains(t, err, "outbox repository is required")
	require.ErrorContains(t, err, "dlq repository is required")
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{PollIntervalMS: 1000}, nil)
	require.Equal(t, time.Second, svc.backoff(0))
	require.Equal(t, 2*time.Second, svc.backoff(1))
	require.Equal(t, 8*time.Second, svc.backoff(3))
	require.Equal(t, maxErrorBackoff, svc.backoff(20))
}

func TestRunStopsWhenPingFails(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	svc.db = &fakeDB{pingErr: errors.New("refused")}

	require.ErrorContains(t, svc.Run(context.Background()), "database not ready")
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, cfg config.OutboxConfig, m *metrics.OutboxMetrics) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Outbox:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
		Metrics:          m,
	})
	require.NoError(t, err)
	return svc
}

func envelopeBytes(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return payload
}

type fakeRepo struct {
	events     []models.OutboxEvent
	published  []uuid.UUID
	failed     []uuid.UUID
	terminal   []uuid.UUID
	publishErr error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = event.CreatedAt
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
