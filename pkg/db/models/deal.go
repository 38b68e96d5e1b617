package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Deal aggregates one seller's trades within a payment.
type Deal struct {
	ID                       uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID                uuid.UUID        `gorm:"column:payment_id;type:uuid;not null;index"`
	BuyerID                  uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID                 uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	Status                   enums.DealStatus `gorm:"column:status;type:text;not null"`
	TotalGoods               int64            `gorm:"column:total_goods;not null"`
	DeliveryCharge           int64            `gorm:"column:delivery_charge;not null"`
	Total                    int64            `gorm:"column:total;not null"`
	Remain                   int64            `gorm:"column:remain;not null"`
	CommissionRate           decimal.Decimal  `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	IsSettled                bool             `gorm:"column:is_settled;not null;default:false"`
	TransactionCompletedDate *time.Time       `gorm:"column:transaction_completed_date"`
	RefundReason             *string          `gorm:"column:refund_reason"`
	CreatedAt                time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	Trades                   []Trade          `gorm:"foreignKey:DealID"`
	Delivery                 *Delivery        `gorm:"foreignKey:DealID"`
}
