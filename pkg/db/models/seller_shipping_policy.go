package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerShippingPolicy holds the per-seller delivery fee rules.
type SellerShippingPolicy struct {
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	GeneralFee      int64     `gorm:"column:general_fee;not null"`
	RemoteAreaFee   int64     `gorm:"column:remote_area_fee;not null"`
	AmountThreshold int64     `gorm:"column:amount_threshold;not null;default:0"`
	VolumeThreshold int       `gorm:"column:volume_threshold;not null;default:0"`
	FreeByAmount    bool      `gorm:"column:free_by_amount;not null;default:false"`
	FreeByVolume    bool      `gorm:"column:free_by_volume;not null;default:false"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
