package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// WalletLog is the seller payout ledger entry for one deal.
type WalletLog struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	DealID    uuid.UUID             `gorm:"column:deal_id;type:uuid;not null;uniqueIndex:ux_wallet_logs_deal_id"`
	SellerID  uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	Amount    int64                 `gorm:"column:amount;not null"`
	Status    enums.WalletLogStatus `gorm:"column:status;type:text;not null"`
	IsSettled bool                  `gorm:"column:is_settled;not null;default:false"`
	SettledAt *time.Time            `gorm:"column:settled_at"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
