package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/cart"
	"github.com/angelmondragon/dealflow-backend/internal/commission"
	"github.com/angelmondragon/dealflow-backend/internal/deliveryfee"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
)

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	taken []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) LockKey(scope, id string) string {
	return "lock:" + scope + ":" + id
}

func (l *fakeLocker) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = value.(string)
	l.taken = append(l.taken, key)
	return true, nil
}

func (l *fakeLocker) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != owner {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

type harness struct {
	svc    Service
	cart   cart.Service
	conn   *gorm.DB
	locker *fakeLocker
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	resolver, err := deliveryfee.NewResolver(deliveryfee.NewRepository(conn), deliveryfee.Policy{GeneralFee: 3000, RemoteAreaFee: 5000})
	require.NoError(t, err)
	carts, err := cart.NewService(cart.NewRepository(conn), product.NewRepository(conn), resolver, nil, client, 0)
	require.NoError(t, err)

	locker := newFakeLocker()
	svc, err := NewService(Deps{
		Repo:       NewRepository(conn),
		Trades:     cart.NewRepository(conn),
		Products:   product.NewRepository(conn),
		Policies:   resolver,
		Commission: commission.NewStaticProvider(decimal.RequireFromString("0.035")),
		Locker:     locker,
		Tx:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:     logg,
	})
	require.NoError(t, err)
	return harness{svc: svc, cart: carts, conn: conn, locker: locker}
}

func (h harness) addToCart(t *testing.T, buyer uuid.UUID, items ...models.Product) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		trade, _, err := h.cart.AddToCart(context.Background(), buyer, item.ID)
		require.NoError(t, err)
		ids = append(ids, trade.ID)
	}
	return ids
}

func input(tradeIDs []uuid.UUID, declared int64) CheckoutInput {
	return CheckoutInput{
		TradeIDs:      tradeIDs,
		Address:       "1 Market St",
		ReceiverName:  "Kim",
		Phone:         "010-0000-0000",
		DeclaredTotal: declared,
	}
}

func count(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestExecuteCreatesPaymentWithDealPerSeller(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	sellerA, sellerB := uuid.New(), uuid.New()
	tradeIDs := h.addToCart(t, buyer,
		dbtest.SeedProduct(t, h.conn, sellerA, 10000),
		dbtest.SeedProduct(t, h.conn, sellerA, 5000),
		dbtest.SeedProduct(t, h.conn, sellerB, 20000),
	)

	result, err := h.svc.Execute(context.Background(), buyer, input(tradeIDs, 41000))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, int64(41000), result.Payment.Price)
	require.Len(t, result.Deals, 2)

	var sum int64
	for _, deal := range result.Deals {
		sum += deal.Total
		assert.Equal(t, enums.DealStatusPaymentConfirming, deal.Status)
		assert.Equal(t, int64(3000), deal.DeliveryCharge)
		assert.Equal(t, result.Payment.ID, deal.PaymentID)
		require.NotNil(t, deal.Delivery)
		assert.Equal(t, enums.DeliveryStep0, deal.Delivery.State)
	}
	assert.Equal(t, result.Payment.Price, sum)

	var trades []models.Trade
	require.NoError(t, h.conn.Where("buyer_id = ?", buyer).Find(&trades).Error)
	require.Len(t, trades, 3)
	for _, trade := range trades {
		assert.Equal(t, enums.TradeStatusPaymentConfirming, trade.Status)
		assert.NotNil(t, trade.DealID)
	}

	var stored models.Deal
	require.NoError(t, h.conn.Where("seller_id = ?", sellerA).First(&stored).Error)
	assert.Equal(t, int64(15000), stored.TotalGoods)
	assert.Equal(t, commission.Remain(15000, 3000, decimal.RequireFromString("0.035")), stored.Remain)
	assert.Equal(t, int64(1), count(t, h.conn, &models.OutboxEvent{}))
	assert.Empty(t, h.locker.held, "lock released after checkout")
}

func TestExecutePriceMismatchLeavesNoRows(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	tradeIDs := h.addToCart(t, buyer, dbtest.SeedProduct(t, h.conn, uuid.New(), 10000))

	_, err := h.svc.Execute(context.Background(), buyer, input(tradeIDs, 12999))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "price_mismatch", details["reason"])
	assert.Equal(t, int64(13000), details["expected"])

	assert.Zero(t, count(t, h.conn, &models.Payment{}))
	assert.Zero(t, count(t, h.conn, &models.Deal{}))
	assert.Zero(t, count(t, h.conn, &models.Delivery{}))
	assert.Zero(t, count(t, h.conn, &models.OutboxEvent{}))

	var trade models.Trade
	require.NoError(t, h.conn.First(&trade, "id = ?", tradeIDs[0]).Error)
	assert.Equal(t, enums.TradeStatusPendingPayment, trade.Status)
	assert.Nil(t, trade.DealID)
}

func TestExecuteRejectsConcurrentCheckoutForBuyer(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	tradeIDs := h.addToCart(t, buyer, dbtest.SeedProduct(t, h.conn, uuid.New(), 10000))
	h.locker.held[h.locker.LockKey(lockScope, buyer.String())] = "someone-else"

	_, err := h.svc.Execute(context.Background(), buyer, input(tradeIDs, 13000))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Zero(t, count(t, h.conn, &models.Payment{}))
	assert.Equal(t, "someone-else", h.locker.held[h.locker.LockKey(lockScope, buyer.String())])
}

func TestExecuteDropsSoldProductsFromCart(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	available := dbtest.SeedProduct(t, h.conn, uuid.New(), 10000)
	gone := dbtest.SeedProduct(t, h.conn, uuid.New(), 10000)
	tradeIDs := h.addToCart(t, buyer, available, gone)
	require.NoError(t, h.conn.Model(&models.Product{}).Where("id = ?", gone.ID).Update("sold", true).Error)

	_, err := h.svc.Execute(context.Background(), buyer, input(tradeIDs, 26000))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Zero(t, count(t, h.conn, &models.Payment{}))

	var remaining []models.Trade
	require.NoError(t, h.conn.Where("buyer_id = ?", buyer).Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, available.ID, remaining[0].ProductID)
}

func TestExecuteRequiresOwnPendingTrades(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	tradeIDs := h.addToCart(t, owner, dbtest.SeedProduct(t, h.conn, uuid.New(), 10000))

	_, err := h.svc.Execute(context.Background(), uuid.New(), input(tradeIDs, 13000))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Execute(context.Background(), owner, input(nil, 13000))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missingAddress := input(tradeIDs, 13000)
	missingAddress.Address = "  "
	_, err = h.svc.Execute(context.Background(), owner, missingAddress)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestExecuteRetriesDeadlockedTransaction(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	tradeIDs := h.addToCart(t, buyer, dbtest.SeedProduct(t, h.conn, uuid.New(), 10000))

	failed := false
	require.NoError(t, h.conn.Callback().Create().Before("gorm:create").Register("test:deadlock_outbox", func(tx *gorm.DB) {
		if !failed && tx.Statement.Table == "outbox_events" {
			failed = true
			_ = tx.AddError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
		}
	}))
	t.Cleanup(func() { _ = h.conn.Callback().Create().Remove("test:deadlock_outbox") })

	result, err := h.svc.Execute(context.Background(), buyer, input(tradeIDs, 13000))
	require.NoError(t, err)
	assert.True(t, failed)
	require.Len(t, result.Deals, 1)
	assert.Equal(t, int64(1), count(t, h.conn, &models.Payment{}))
	assert.Equal(t, int64(1), count(t, h.conn, &models.Deal{}))
	assert.Equal(t, enums.TradeStatusPaymentConfirming, result.Deals[0].Trades[0].Status)
}
