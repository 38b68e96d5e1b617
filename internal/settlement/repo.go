package settlement

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

const uniqueWalletLogDeal = "ux_wallet_logs_deal_id"

// Repository persists the seller payout ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, logs []models.WalletLog) error
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletLog, error)
	FindByDeal(ctx context.Context, dealID uuid.UUID) (*models.WalletLog, error)
	List(ctx context.Context, params listParams) ([]models.WalletLog, *pagination.Cursor, error)
	MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	UpdateStatusByDeal(ctx context.Context, dealID uuid.UUID, from, to enums.WalletLogStatus) (int64, error)
	FindSettleable(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet log repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listParams struct {
	Status *enums.WalletLogStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, logs []models.WalletLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&logs).Error
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletLog, error) {
	var log models.WalletLog
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *repository) FindByDeal(ctx context.Context, dealID uuid.UUID) (*models.WalletLog, error) {
	var log models.WalletLog
	if err := r.db.WithContext(ctx).Where("deal_id = ?", dealID).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.WalletLog, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.WalletLog{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var logs []models.WalletLog
	if err := pagination.Query(query, params.Cursor, params.Limit).Find(&logs).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(logs, params.Limit, func(l models.WalletLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return page, next, nil
}

// MarkSettled flips a pending, unsettled log. Zero rows means it was already paid out.
func (r *repository) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WalletLog{}).
		Where("id = ? AND is_settled = ? AND status = ?", id, false, enums.WalletLogStatusPending).
		Updates(map[string]any{
			"status":     enums.WalletLogStatusSettled,
			"is_settled": true,
			"settled_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateStatusByDeal(ctx context.Context, dealID uuid.UUID, from, to enums.WalletLogStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WalletLog{}).
		Where("deal_id = ? AND status = ?", dealID, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// FindSettleable returns pending logs whose deal is complete and not yet settled.
func (r *repository) FindSettleable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.WalletLog{}).
		Joins("JOIN deals ON deals.id = wallet_logs.deal_id").
		Where("wallet_logs.status = ? AND wallet_logs.is_settled = ?", enums.WalletLogStatusPending, false).
		Where("deals.status = ? AND deals.is_settled = ?", enums.DealStatusComplete, false).
		Order("wallet_logs.created_at ASC").
		Limit(limit).
		Pluck("wallet_logs.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
