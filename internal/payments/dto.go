package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// PaymentView is the API projection of a payment and its deals.
type PaymentView struct {
	ID             uuid.UUID           `json:"id"`
	BuyerID        uuid.UUID           `json:"buyer_id"`
	ReceiptID      *string             `json:"receipt_id,omitempty"`
	Status         enums.PaymentStatus `json:"status"`
	Price          int64               `json:"price"`
	CanceledAmount int64               `json:"canceled_amount"`
	CancelReason   *string             `json:"cancel_reason,omitempty"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
	CanceledAt     *time.Time          `json:"canceled_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Deals          []deals.DealView    `json:"deals"`
}

func NewPaymentView(payment models.Payment, dealRows []models.Deal) PaymentView {
	view := PaymentView{
		ID:             payment.ID,
		BuyerID:        payment.BuyerID,
		ReceiptID:      payment.ReceiptID,
		Status:         payment.Status,
		Price:          payment.Price,
		CanceledAmount: payment.CanceledAmount,
		CancelReason:   payment.CancelReason,
		PaidAt:         payment.PaidAt,
		CanceledAt:     payment.CanceledAt,
		CreatedAt:      payment.CreatedAt,
		Deals:          make([]deals.DealView, 0, len(dealRows)),
	}
	for _, deal := range dealRows {
		view.Deals = append(view.Deals, deals.NewDealView(deal))
	}
	return view
}
