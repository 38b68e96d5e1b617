package deals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/pagination"
)

// Repository persists deals and the trades that move with them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Deal, error)
	List(ctx context.Context, params listParams) ([]models.Deal, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.DealStatus, extra map[string]any) (int64, error)
	UpdateTradeStatus(ctx context.Context, dealID uuid.UUID, status enums.TradeStatus) error
	DeleteByPayment(ctx context.Context, paymentID uuid.UUID) error
	ReleaseByPayment(ctx context.Context, paymentID uuid.UUID) error
	FindAutoCompletable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listParams struct {
	UserID uuid.UUID
	As     Perspective
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	err := r.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Delivery").
		Where("id = ?", id).
		First(&deal).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&deal).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *repository) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Deal, error) {
	var deals []models.Deal
	err := r.db.WithContext(ctx).
		Preload("Trades").
		Preload("Delivery").
		Where("payment_id = ?", paymentID).
		Order("created_at ASC, id ASC").
		Find(&deals).Error
	if err != nil {
		return nil, err
	}
	return deals, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Deal, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Deal{}).Preload("Delivery")
	if params.As == PerspectiveSeller {
		query = query.Where("seller_id = ?", params.UserID)
	} else {
		query = query.Where("buyer_id = ?", params.UserID)
	}

	var deals []models.Deal
	if err := pagination.Query(query, params.Cursor, params.Limit).Find(&deals).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(deals, params.Limit, func(d models.Deal) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return page, next, nil
}

// UpdateStatus is a check-and-set on the current status; zero rows means
// another writer moved the deal first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.DealStatus, extra map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.Deal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateTradeStatus(ctx context.Context, dealID uuid.UUID, status enums.TradeStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("deal_id = ?", dealID).
		Update("status", status).Error
}

// DeleteByPayment removes a checkout together with its trades.
func (r *repository) DeleteByPayment(ctx context.Context, paymentID uuid.UUID) error {
	dealIDs := r.db.Model(&models.Deal{}).Select("id").Where("payment_id = ?", paymentID)
	if err := r.db.WithContext(ctx).Where("deal_id IN (?)", dealIDs).Delete(&models.Trade{}).Error; err != nil {
		return err
	}
	return r.deleteDeals(ctx, paymentID)
}

// ReleaseByPayment removes a checkout but puts its trades back in the
// buyer's cart.
func (r *repository) ReleaseByPayment(ctx context.Context, paymentID uuid.UUID) error {
	dealIDs := r.db.Model(&models.Deal{}).Select("id").Where("payment_id = ?", paymentID)
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("deal_id IN (?) AND status = ?", dealIDs, enums.TradeStatusPaymentConfirming).
		Updates(map[string]any{"status": enums.TradeStatusPendingPayment, "deal_id": nil}).Error
	if err != nil {
		return err
	}
	return r.deleteDeals(ctx, paymentID)
}

func (r *repository) deleteDeals(ctx context.Context, paymentID uuid.UUID) error {
	dealIDs := r.db.Model(&models.Deal{}).Select("id").Where("payment_id = ?", paymentID)
	if err := r.db.WithContext(ctx).Where("deal_id IN (?)", dealIDs).Delete(&models.Delivery{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&models.Deal{}).Error
}

// FindAutoCompletable returns deals whose waybill was registered before cutoff,
// that sit in an auto-completable status and have no review yet.
func (r *repository) FindAutoCompletable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Deal{}).
		Joins("JOIN deliveries ON deliveries.deal_id = deals.id").
		Joins("LEFT JOIN reviews ON reviews.deal_id = deals.id").
		Where("deals.status IN ?", enums.AutoCompletableDealStatuses).
		Where("deliveries.number_created_time IS NOT NULL AND deliveries.number_created_time < ?", cutoff).
		Where("reviews.id IS NULL").
		Order("deliveries.number_created_time ASC").
		Limit(limit).
		Pluck("deals.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
