package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Delivery is the shipment record for a deal.
type Delivery struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	DealID            uuid.UUID          `gorm:"column:deal_id;type:uuid;not null;uniqueIndex:ux_deliveries_deal_id"`
	SenderID          uuid.UUID          `gorm:"column:sender_id;type:uuid;not null"`
	ReceiverName      string             `gorm:"column:receiver_name;not null"`
	Phone             string             `gorm:"column:phone;not null"`
	Address           string             `gorm:"column:address;not null"`
	Memo              *string            `gorm:"column:memo"`
	IsRemoteArea      bool               `gorm:"column:is_remote_area;not null;default:false"`
	CarrierCode       *string            `gorm:"column:carrier_code"`
	WaybillNumber     *string            `gorm:"column:waybill_number"`
	State             enums.DeliveryStep `gorm:"column:state;type:text;not null"`
	NumberCreatedTime *time.Time         `gorm:"column:number_created_time;index"`
	DeliveredAt       *time.Time         `gorm:"column:delivered_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
