package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row this service reads and flips to sold at capture.
// Catalog CRUD lives elsewhere.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID     uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Title        string          `gorm:"column:title;not null"`
	Price        int64           `gorm:"column:price;not null"`
	DiscountRate decimal.Decimal `gorm:"column:discount_rate;type:numeric(5,4);not null;default:0"`
	Sold         bool            `gorm:"column:sold;not null;default:false"`
	SoldAt       *time.Time      `gorm:"column:sold_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies the listing discount and rounds up to the next 100
// minor units. Undiscounted prices are rounded too.
func (p Product) DiscountedPrice() int64 {
	discounted := decimal.NewFromInt(p.Price).Mul(decimal.NewFromInt(1).Sub(p.DiscountRate))
	return discounted.Div(hundred).Ceil().Mul(hundred).IntPart()
}
