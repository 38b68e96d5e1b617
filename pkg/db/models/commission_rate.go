package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionRate is a platform commission effective from EffectiveAt onward.
type CommissionRate struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Rate        decimal.Decimal `gorm:"column:rate;type:numeric(5,4);not null"`
	EffectiveAt time.Time       `gorm:"column:effective_at;not null;index"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
