package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

func TestEmitAndPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	dealID := uuid.New()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealCompleted,
			AggregateType: enums.AggregateDeal,
			AggregateID:   dealID,
			Data:          payloads.DealStatusEvent{DealID: dealID, Status: enums.DealStatusComplete},
		})
	}))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, rows, 1)
	require.Equal(t, dealID, rows[0].AggregateID)
	require.Contains(t, string(rows[0].Payload), `"version":1`)

	require.NoError(t, repo.MarkFailedTx(conn, rows[0].ID, errors.New("transient")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("dead"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending, "terminal rows must not be fetched again")
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := models.OutboxEvent{EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	stale := models.OutboxEvent{EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &old}
	require.NoError(t, repo.Insert(conn, fresh))
	require.NoError(t, repo.Insert(conn, stale))

	deleted, err := repo.DeletePublishedBefore(conn, time.Now().UTC().Add(-24*time.Hour), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	err := svc.Emit(context.Background(), conn, outbox.DomainEvent{
		EventType:     enums.OutboxEventType("nope"),
		AggregateType: enums.AggregateDeal,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
}
