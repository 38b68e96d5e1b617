package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is the buyer's immutable rating of a deal.
type Review struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DealID    uuid.UUID `gorm:"column:deal_id;type:uuid;not null;uniqueIndex:ux_reviews_deal_id"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Rating    int       `gorm:"column:rating;not null"`
	Content   string    `gorm:"column:content;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
