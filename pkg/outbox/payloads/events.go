package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// CheckoutCreatedEvent is emitted when trades are aggregated into a pending payment.
type CheckoutCreatedEvent struct {
	PaymentID uuid.UUID   `json:"payment_id"`
	BuyerID   uuid.UUID   `json:"buyer_id"`
	DealIDs   []uuid.UUID `json:"deal_ids"`
	Price     int64       `json:"price"`
}

// CapturedDeal summarizes one deal inside a captured payment.
type CapturedDeal struct {
	DealID         uuid.UUID `json:"deal_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	WalletLogID    uuid.UUID `json:"wallet_log_id"`
	TotalGoods     int64     `json:"total_goods"`
	DeliveryCharge int64     `json:"delivery_charge"`
	Total          int64     `json:"total"`
	Remain         int64     `json:"remain"`
	CommissionRate string    `json:"commission_rate"`
}

// PaymentCapturedEvent is emitted once the gateway amount matched and products were sold.
type PaymentCapturedEvent struct {
	PaymentID uuid.UUID      `json:"payment_id"`
	BuyerID   uuid.UUID      `json:"buyer_id"`
	ReceiptID string         `json:"receipt_id"`
	Amount    int64          `json:"amount"`
	PaidAt    time.Time      `json:"paid_at"`
	Deals     []CapturedDeal `json:"deals"`
}

// PaymentCanceledEvent is emitted when money was returned to the buyer at the gateway.
type PaymentCanceledEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	BuyerID        uuid.UUID           `json:"buyer_id"`
	Status         enums.PaymentStatus `json:"status"`
	CanceledAmount int64               `json:"canceled_amount"`
	Reason         string              `json:"reason"`
	CanceledAt     time.Time           `json:"canceled_at"`
}

// PaymentFailedEvent is emitted when a payment ends in a state that needs an operator.
type PaymentFailedEvent struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	BuyerID   uuid.UUID           `json:"buyer_id"`
	Status    enums.PaymentStatus `json:"status"`
	Reason    string              `json:"reason"`
}

// DealStatusEvent covers shipment, delivery, completion and refund request transitions.
type DealStatusEvent struct {
	DealID    uuid.UUID        `json:"deal_id"`
	PaymentID uuid.UUID        `json:"payment_id"`
	BuyerID   uuid.UUID        `json:"buyer_id"`
	SellerID  uuid.UUID        `json:"seller_id"`
	Status    enums.DealStatus `json:"status"`
	Source    string           `json:"source,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	At        time.Time        `json:"at"`
}

// DealSettledEvent is emitted when a wallet log pays out to the seller.
type DealSettledEvent struct {
	DealID      uuid.UUID `json:"deal_id"`
	WalletLogID uuid.UUID `json:"wallet_log_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	Amount      int64     `json:"amount"`
	SettledAt   time.Time `json:"settled_at"`
}

// DealRefundedEvent is emitted after a seller-approved refund cleared the gateway.
type DealRefundedEvent struct {
	DealID     uuid.UUID `json:"deal_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	SellerID   uuid.UUID `json:"seller_id"`
	Amount     int64     `json:"amount"`
	RefundedAt time.Time `json:"refunded_at"`
}

// NotificationRequestedEvent carries one notice to the notification consumer.
type NotificationRequestedEvent struct {
	UserID     uuid.UUID              `json:"user_id"`
	Kind       enums.NotificationKind `json:"kind"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Link       string                 `json:"link,omitempty"`
	Readable   bool                   `json:"readable"`
	Notifiable bool                   `json:"notifiable"`
}
