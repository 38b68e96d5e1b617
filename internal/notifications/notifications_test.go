package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
}

func TestEveryKindHasAVariant(t *testing.T) {
	id := uuid.New()
	notices := []Notice{
		PaymentCompleted{BuyerID: id},
		ItemSold{SellerID: id},
		WaybillRegistered{BuyerID: id},
		DealSettled{SellerID: id},
		RefundRequested{SellerID: id},
		RefundResolved{BuyerID: id},
	}
	seen := map[enums.NotificationKind]bool{}
	for _, n := range notices {
		assert.True(t, n.Kind().IsValid())
		assert.Equal(t, id, n.Target())
		assert.NotEmpty(t, n.Title())
		assert.NotEmpty(t, n.Content())
		seen[n.Kind()] = true
	}
	assert.Len(t, seen, len(notices))
}

func TestDispatcherQueuesOutboxRows(t *testing.T) {
	db := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(db), testLogger())
	dispatcher, err := NewDispatcher(emitter, testLogger())
	require.NoError(t, err)

	buyer := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		dispatcher.Notify(context.Background(), tx, PaymentCompleted{BuyerID: buyer, PaymentID: uuid.New(), Amount: 13000, DealCount: 1})
		return nil
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, buyer, rows[0].AggregateID)
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox down")
}

func TestDispatcherFailureDoesNotAbortCaller(t *testing.T) {
	db := dbtest.Open(t)
	dispatcher, err := NewDispatcher(failingEmitter{}, testLogger())
	require.NoError(t, err)

	productID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Product{ID: productID, SellerID: uuid.New(), Title: "x", Price: 100}).Error; err != nil {
			return err
		}
		dispatcher.Notify(context.Background(), tx, ItemSold{SellerID: uuid.New(), DealID: uuid.New()})
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "caller write must survive a failed notification")
}

func TestServiceListAndMarkRead(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	user := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.Notification{
			UserID:    user,
			Kind:      enums.NotificationKindItemSold,
			Title:     "Item sold",
			Content:   "sold",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := svc.List(context.Background(), ListParams{UserID: user, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.Cursor)

	rest, err := svc.List(context.Background(), ListParams{UserID: user, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.Cursor)
	assert.True(t, rest.Items[0].CreatedAt.Equal(base), "oldest notice lands on the second page")

	require.NoError(t, svc.MarkRead(context.Background(), user, page.Items[0].ID))
	require.NoError(t, svc.MarkRead(context.Background(), user, page.Items[0].ID), "marking twice is a no-op")
	err = svc.MarkRead(context.Background(), uuid.New(), page.Items[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "other users cannot mark the notification")

	count, err := svc.MarkAllRead(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	unread, err := svc.List(context.Background(), ListParams{UserID: user, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread.Items)
}

func TestDeleteOlderThan(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	user := uuid.New()
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	require.NoError(t, repo.Create(context.Background(), &models.Notification{UserID: user, Kind: enums.NotificationKindItemSold, Title: "a", Content: "a", CreatedAt: old}))
	require.NoError(t, repo.Create(context.Background(), &models.Notification{UserID: user, Kind: enums.NotificationKindItemSold, Title: "b", Content: "b", CreatedAt: time.Now().UTC()}))

	require.NoError(t, repo.Create(context.Background(), &models.Notification{UserID: user, Kind: enums.NotificationKindItemSold, Title: "c", Content: "c", CreatedAt: old.Add(time.Hour)}))

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	deleted, err := repo.DeleteOlderThan(db, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "limit bounds a single batch")
	deleted, err = repo.DeleteOlderThan(nil, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var left int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}
