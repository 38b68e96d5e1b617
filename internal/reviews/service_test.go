package reviews

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "reviews-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)
	dealRepo := deals.NewRepository(client.DB())
	dealSvc, err := deals.NewService(dealRepo, client, emitter, nil, 120*time.Hour)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), dealRepo, dealSvc, client)
	require.NoError(t, err)
	return svc, client.DB()
}

func TestCreateReviewCompletesDeal(t *testing.T) {
	svc, conn := newTestService(t)
	waybillAt := time.Now().UTC().Add(-24 * time.Hour)
	fx := dbtest.SeedDeal(t, conn, dbtest.DealOptions{DealStatus: enums.DealStatusShipped, WaybillAt: &waybillAt})

	review, err := svc.Create(context.Background(), CreateInput{BuyerID: fx.Deal.BuyerID, DealID: fx.Deal.ID, Rating: 5, Content: " great "})
	require.NoError(t, err)
	assert.Equal(t, "great", review.Content)
	assert.Equal(t, fx.Deal.SellerID, review.SellerID)

	var deal models.Deal
	require.NoError(t, conn.First(&deal, "id = ?", fx.Deal.ID).Error)
	assert.Equal(t, enums.DealStatusComplete, deal.Status)
	assert.NotNil(t, deal.TransactionCompletedDate)

	stored, err := NewRepository(conn).FindByDeal(context.Background(), fx.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, review.ID, stored.ID)
}

func TestCreateReviewOncePerDeal(t *testing.T) {
	svc, conn := newTestService(t)
	fx := dbtest.SeedDeal(t, conn, dbtest.DealOptions{DealStatus: enums.DealStatusDelivered})

	_, err := svc.Create(context.Background(), CreateInput{BuyerID: fx.Deal.BuyerID, DealID: fx.Deal.ID, Rating: 4})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{BuyerID: fx.Deal.BuyerID, DealID: fx.Deal.ID, Rating: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, conn.Model(&models.Review{}).Where("deal_id = ?", fx.Deal.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateReviewValidation(t *testing.T) {
	svc, conn := newTestService(t)
	paid := dbtest.SeedDeal(t, conn, dbtest.DealOptions{DealStatus: enums.DealStatusPaid})

	cases := []struct {
		name  string
		input CreateInput
		code  pkgerrors.Code
	}{
		{"rating too low", CreateInput{BuyerID: paid.Deal.BuyerID, DealID: paid.Deal.ID, Rating: 0}, pkgerrors.CodeValidation},
		{"rating too high", CreateInput{BuyerID: paid.Deal.BuyerID, DealID: paid.Deal.ID, Rating: 6}, pkgerrors.CodeValidation},
		{"not the buyer", CreateInput{BuyerID: uuid.New(), DealID: paid.Deal.ID, Rating: 3}, pkgerrors.CodeForbidden},
		{"not shipped", CreateInput{BuyerID: paid.Deal.BuyerID, DealID: paid.Deal.ID, Rating: 3}, pkgerrors.CodeStateConflict},
		{"missing deal", CreateInput{BuyerID: paid.Deal.BuyerID, DealID: uuid.New(), Rating: 3}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}
