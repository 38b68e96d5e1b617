package deliveryfee

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
)

// Repository reads seller shipping policies.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySellerIDs(ctx context.Context, sellerIDs []uuid.UUID) ([]models.SellerShippingPolicy, error)
	Upsert(ctx context.Context, policy *models.SellerShippingPolicy) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBySellerIDs(ctx context.Context, sellerIDs []uuid.UUID) ([]models.SellerShippingPolicy, error) {
	if len(sellerIDs) == 0 {
		return nil, nil
	}
	var rows []models.SellerShippingPolicy
	if err := r.db.WithContext(ctx).Where("seller_id IN ?", sellerIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Upsert(ctx context.Context, policy *models.SellerShippingPolicy) error {
	return r.db.WithContext(ctx).Save(policy).Error
}
