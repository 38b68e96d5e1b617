package deliveries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Repository persists delivery rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	SetWaybill(ctx context.Context, id uuid.UUID, carrierCode, number string, at time.Time) (int64, error)
	Advance(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStep, deliveredAt *time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deliveries repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

// SetWaybill writes the waybill only while the delivery is still at step0.
func (r *repository) SetWaybill(ctx context.Context, id uuid.UUID, carrierCode, number string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ? AND state = ?", id, enums.DeliveryStep0).
		Updates(map[string]any{
			"carrier_code":        carrierCode,
			"waybill_number":      number,
			"number_created_time": at,
			"state":               enums.DeliveryStep1,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Advance(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStep, deliveredAt *time.Time) (int64, error) {
	updates := map[string]any{"state": to}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
