package main

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/registry"
)

// verdict is what became of one claimed row.
type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDead
)

func (v verdict) label() string {
	return [...]string{metrics.OutboxResultPublished, metrics.OutboxResultRetry, metrics.OutboxResultDead}[v]
}

// deliver publishes row and records the verdict in tx. The returned error is
// only ever a failed bookkeeping write.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (verdict, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return verdictDead, s.bury(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{"topic": resolved.Descriptor.Topic, "event_id": resolved.Envelope.EventID})

	pubErr := s.publish(ctx, row, resolved)
	attempt := row.AttemptCount + 1
	switch {
	case pubErr == nil:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return verdictPublished, fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.logg.Debug(logCtx, "outbox event published")
		return verdictPublished, nil
	case registry.IsPermanent(pubErr):
		return verdictDead, s.bury(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr)
	case attempt >= s.maxAttempts:
		return verdictDead, s.bury(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("attempt %d of %d: %w", attempt, s.maxAttempts, pubErr))
	}

	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"attempt": attempt, "error": pubErr.Error()}), "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return verdictRetry, fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	return verdictRetry, nil
}

// bury copies row into the dead letter table and closes it out.
func (s *Service) bury(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()}), "outbox event dead lettered")
	msg := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("dead letter %s: %w", row.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("close %s: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attributes(row, resolved),
		OrderingKey: orderingKey(row),
	})
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for %s returned no result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

var baseAttributes = map[string]string{"producer": "outbox-publisher"}

// attributes let subscribers filter and dedupe without decoding the payload.
func attributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := maps.Clone(baseAttributes)
	attrs["event_id"] = resolved.Envelope.EventID
	attrs["event_type"] = string(row.EventType)
	attrs["aggregate_type"] = string(row.AggregateType)
	attrs["aggregate_id"] = row.AggregateID.String()
	attrs["created_at"] = row.CreatedAt.UTC().Format(time.RFC3339Nano)
	if v := resolved.Envelope.Version; v > 0 {
		attrs["schema_version"] = strconv.Itoa(v)
	}
	return attrs
}

// orderingKey keeps one aggregate's events in commit order on the topic.
func orderingKey(row models.OutboxEvent) string {
	return string(row.AggregateType) + ":" + row.AggregateID.String()
}
