package deals

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Perspective selects whether a listing is from the buyer or the seller side.
type Perspective string

const (
	PerspectiveBuyer  Perspective = "buyer"
	PerspectiveSeller Perspective = "seller"
)

// ParsePerspective defaults to the buyer side when value is empty.
func ParsePerspective(value string) (Perspective, bool) {
	switch Perspective(value) {
	case "", PerspectiveBuyer:
		return PerspectiveBuyer, true
	case PerspectiveSeller:
		return PerspectiveSeller, true
	default:
		return "", false
	}
}

// CompletionSource records what finalized a deal.
type CompletionSource string

const (
	CompletionReview CompletionSource = "review"
	CompletionTimer  CompletionSource = "auto_complete"
	CompletionAdmin  CompletionSource = "admin"
)

// DealView is the API projection of a deal.
type DealView struct {
	ID                       uuid.UUID        `json:"id"`
	PaymentID                uuid.UUID        `json:"payment_id"`
	BuyerID                  uuid.UUID        `json:"buyer_id"`
	SellerID                 uuid.UUID        `json:"seller_id"`
	Status                   enums.DealStatus `json:"status"`
	TotalGoods               int64            `json:"total_goods"`
	DeliveryCharge           int64            `json:"delivery_charge"`
	Total                    int64            `json:"total"`
	Remain                   int64            `json:"remain"`
	CommissionRate           string           `json:"commission_rate"`
	IsSettled                bool             `json:"is_settled"`
	TransactionCompletedDate *time.Time       `json:"transaction_completed_date,omitempty"`
	RefundReason             *string          `json:"refund_reason,omitempty"`
	CreatedAt                time.Time        `json:"created_at"`
	Trades                   []TradeView      `json:"trades,omitempty"`
	Delivery                 *DeliveryView    `json:"delivery,omitempty"`
}

// TradeView is a line item within a deal.
type TradeView struct {
	ID        uuid.UUID         `json:"id"`
	ProductID uuid.UUID         `json:"product_id"`
	Status    enums.TradeStatus `json:"status"`
}

// DeliveryView is the shipment summary shown with a deal.
type DeliveryView struct {
	ID                uuid.UUID          `json:"id"`
	State             enums.DeliveryStep `json:"state"`
	ReceiverName      string             `json:"receiver_name"`
	Address           string             `json:"address"`
	IsRemoteArea      bool               `json:"is_remote_area"`
	CarrierCode       *string            `json:"carrier_code,omitempty"`
	WaybillNumber     *string            `json:"waybill_number,omitempty"`
	NumberCreatedTime *time.Time         `json:"number_created_time,omitempty"`
	DeliveredAt       *time.Time         `json:"delivered_at,omitempty"`
}

// NewDealView maps a deal model, including whatever associations were loaded.
func NewDealView(deal models.Deal) DealView {
	view := DealView{
		ID:                       deal.ID,
		PaymentID:                deal.PaymentID,
		BuyerID:                  deal.BuyerID,
		SellerID:                 deal.SellerID,
		Status:                   deal.Status,
		TotalGoods:               deal.TotalGoods,
		DeliveryCharge:           deal.DeliveryCharge,
		Total:                    deal.Total,
		Remain:                   deal.Remain,
		CommissionRate:           deal.CommissionRate.String(),
		IsSettled:                deal.IsSettled,
		TransactionCompletedDate: deal.TransactionCompletedDate,
		RefundReason:             deal.RefundReason,
		CreatedAt:                deal.CreatedAt,
	}
	for _, trade := range deal.Trades {
		view.Trades = append(view.Trades, TradeView{ID: trade.ID, ProductID: trade.ProductID, Status: trade.Status})
	}
	if d := deal.Delivery; d != nil {
		view.Delivery = &DeliveryView{
			ID:                d.ID,
			State:             d.State,
			ReceiverName:      d.ReceiverName,
			Address:           d.Address,
			IsRemoteArea:      d.IsRemoteArea,
			CarrierCode:       d.CarrierCode,
			WaybillNumber:     d.WaybillNumber,
			NumberCreatedTime: d.NumberCreatedTime,
			DeliveredAt:       d.DeliveredAt,
		}
	}
	return view
}
