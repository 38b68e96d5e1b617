package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

const uniqueTradeKey = "ux_trades_product_seller_buyer"

// Repository persists trades while they live in a buyer's cart.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByKey(ctx context.Context, productID, sellerID, buyerID uuid.UUID) (*models.Trade, error)
	Create(ctx context.Context, trade *models.Trade) error
	ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Trade, error)
	FindPendingByIDs(ctx context.Context, buyerID uuid.UUID, ids []uuid.UUID) ([]models.Trade, error)
	DeletePendingByIDs(ctx context.Context, buyerID uuid.UUID, ids []uuid.UUID) (int64, error)
	DeleteSoldPending(ctx context.Context, buyerID *uuid.UUID) (int64, error)
	FindStaleCheckouts(ctx context.Context, buyerID *uuid.UUID, limit int) ([]uuid.UUID, error)
	FindExpiredCheckouts(ctx context.Context, buyerID *uuid.UUID, createdBefore time.Time, limit int) ([]uuid.UUID, error)
	FindReservingCheckouts(ctx context.Context, buyerID uuid.UUID, tradeIDs []uuid.UUID) ([]uuid.UUID, error)
	AssignDeal(ctx context.Context, ids []uuid.UUID, dealID uuid.UUID) error
	UpdateStatusByIDs(ctx context.Context, ids []uuid.UUID, from, to enums.TradeStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a trade repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByKey returns the buyer's live trade for a product. Refunded trades are
// history and never block a new one.
func (r *repository) FindByKey(ctx context.Context, productID, sellerID, buyerID uuid.UUID) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND seller_id = ? AND buyer_id = ?", productID, sellerID, buyerID).
		Where("status <> ?", enums.TradeStatusRefunded).
		First(&trade).Error
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *repository) Create(ctx context.Context, trade *models.Trade) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

// ListPending returns the buyer's cart: free trades plus trades reserved by a
// checkout whose payment has not received a receipt yet.
func (r *repository) ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Trade, error) {
	reserving := r.db.Model(&models.Deal{}).
		Select("deals.id").
		Joins("JOIN payments ON payments.id = deals.payment_id").
		Where("payments.status = ?", enums.PaymentStatusPending)
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Where("(status = ? AND deal_id IS NULL) OR (status = ? AND deal_id IN (?))",
			enums.TradeStatusPendingPayment, enums.TradeStatusPaymentConfirming, reserving).
		Order("created_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// FindPendingByIDs locks the buyer's pending trades among ids.
func (r *repository) FindPendingByIDs(ctx context.Context, buyerID uuid.UUID, ids []uuid.UUID) ([]models.Trade, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("buyer_id = ? AND status = ? AND deal_id IS NULL AND id IN ?", buyerID, enums.TradeStatusPendingPayment, ids).
		Order("created_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *repository) DeletePendingByIDs(ctx context.Context, buyerID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("buyer_id = ? AND status = ? AND deal_id IS NULL AND id IN ?", buyerID, enums.TradeStatusPendingPayment, ids).
		Delete(&models.Trade{})
	return result.RowsAffected, result.Error
}

// DeleteSoldPending removes cart rows whose product was sold elsewhere. A nil
// buyer sweeps every cart.
func (r *repository) DeleteSoldPending(ctx context.Context, buyerID *uuid.UUID) (int64, error) {
	soldProducts := r.db.Model(&models.Product{}).Select("id").Where("sold = ?", true)
	query := r.db.WithContext(ctx).
		Where("status = ? AND deal_id IS NULL AND product_id IN (?)", enums.TradeStatusPendingPayment, soldProducts)
	if buyerID != nil {
		query = query.Where("buyer_id = ?", *buyerID)
	}
	result := query.Delete(&models.Trade{})
	return result.RowsAffected, result.Error
}

// FindStaleCheckouts returns pending payments that reference a product sold
// to someone else before a receipt was attached.
func (r *repository) FindStaleCheckouts(ctx context.Context, buyerID *uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Distinct("deals.payment_id").
		Joins("JOIN deals ON deals.id = trades.deal_id").
		Joins("JOIN payments ON payments.id = deals.payment_id").
		Joins("JOIN products ON products.id = trades.product_id").
		Where("trades.status = ? AND payments.status = ? AND products.sold = ?",
			enums.TradeStatusPaymentConfirming, enums.PaymentStatusPending, true)
	if buyerID != nil {
		query = query.Where("trades.buyer_id = ?", *buyerID)
	}
	var ids []uuid.UUID
	if err := query.Limit(limit).Pluck("deals.payment_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindExpiredCheckouts returns payments still waiting for a receipt that were
// created before createdBefore.
func (r *repository) FindExpiredCheckouts(ctx context.Context, buyerID *uuid.UUID, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", enums.PaymentStatusPending, createdBefore)
	if buyerID != nil {
		query = query.Where("buyer_id = ?", *buyerID)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindReservingCheckouts returns the pending payments holding any of the
// buyer's trades.
func (r *repository) FindReservingCheckouts(ctx context.Context, buyerID uuid.UUID, tradeIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(tradeIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Distinct("deals.payment_id").
		Joins("JOIN deals ON deals.id = trades.deal_id").
		Joins("JOIN payments ON payments.id = deals.payment_id").
		Where("trades.buyer_id = ? AND trades.id IN ? AND trades.status = ? AND payments.status = ?",
			buyerID, tradeIDs, enums.TradeStatusPaymentConfirming, enums.PaymentStatusPending).
		Pluck("deals.payment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) AssignDeal(ctx context.Context, ids []uuid.UUID, dealID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id IN ?", ids).
		Update("deal_id", dealID).Error
}

func (r *repository) UpdateStatusByIDs(ctx context.Context, ids []uuid.UUID, from, to enums.TradeStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id IN ? AND status = ?", ids, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}
