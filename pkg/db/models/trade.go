package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Trade is one product a buyer intends to buy from one seller. A refunded
// trade no longer holds its (product, seller, buyer) key.
type Trade struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_trades_product_seller_buyer,priority:1,where:status <> 'refunded'"`
	SellerID  uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_trades_product_seller_buyer,priority:2"`
	BuyerID   uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_trades_product_seller_buyer,priority:3"`
	DealID    *uuid.UUID        `gorm:"column:deal_id;type:uuid;index"`
	Status    enums.TradeStatus `gorm:"column:status;type:text;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
