package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Payment is one gateway transaction covering every deal of a checkout.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID        uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	ReceiptID      *string             `gorm:"column:receipt_id"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	Price          int64               `gorm:"column:price;not null"`
	CanceledAmount int64               `gorm:"column:canceled_amount;not null;default:0"`
	CancelReason   *string             `gorm:"column:cancel_reason"`
	GatewayRaw     json.RawMessage     `gorm:"column:gateway_raw;type:jsonb"`
	PaidAt         *time.Time          `gorm:"column:paid_at"`
	CanceledAt     *time.Time          `gorm:"column:canceled_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining is the captured amount not yet returned to the buyer.
func (p Payment) Remaining() int64 {
	return p.Price - p.CanceledAmount
}
