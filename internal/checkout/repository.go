package checkout

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
)

// Repository inserts the rows a checkout produces.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateDeal(ctx context.Context, deal *models.Deal) error
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) CreateDeal(ctx context.Context, deal *models.Deal) error {
	return r.db.WithContext(ctx).Omit("Trades", "Delivery").Create(deal).Error
}

func (r *repository) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}
