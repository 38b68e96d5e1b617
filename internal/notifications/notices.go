package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// Notice is one user-facing message. The set of implementations is closed:
// every kind in enums.NotificationKind has exactly one variant below.
type Notice interface {
	Kind() enums.NotificationKind
	Title() string
	Content() string
	Link() string
	Target() uuid.UUID
	IsReadable() bool
	IsNotifiable() bool
}

// PaymentCompleted tells the buyer the gateway capture went through.
type PaymentCompleted struct {
	BuyerID   uuid.UUID
	PaymentID uuid.UUID
	Amount    int64
	DealCount int
}

func (n PaymentCompleted) Kind() enums.NotificationKind { return enums.NotificationKindPaymentCompleted }
func (n PaymentCompleted) Title() string                { return "Payment completed" }
func (n PaymentCompleted) Content() string {
	return fmt.Sprintf("Your payment of %d for %d order(s) was completed.", n.Amount, n.DealCount)
}
func (n PaymentCompleted) Link() string       { return fmt.Sprintf("/payments/%s", n.PaymentID) }
func (n PaymentCompleted) Target() uuid.UUID  { return n.BuyerID }
func (n PaymentCompleted) IsReadable() bool   { return true }
func (n PaymentCompleted) IsNotifiable() bool { return true }

// ItemSold tells a seller that a deal was paid and is waiting for shipment.
type ItemSold struct {
	SellerID  uuid.UUID
	DealID    uuid.UUID
	ItemCount int
	Total     int64
}

func (n ItemSold) Kind() enums.NotificationKind { return enums.NotificationKindItemSold }
func (n ItemSold) Title() string                { return "Item sold" }
func (n ItemSold) Content() string {
	return fmt.Sprintf("%d item(s) sold for %d. Please register a waybill once shipped.", n.ItemCount, n.Total)
}
func (n ItemSold) Link() string       { return fmt.Sprintf("/deals/%s", n.DealID) }
func (n ItemSold) Target() uuid.UUID  { return n.SellerID }
func (n ItemSold) IsReadable() bool   { return true }
func (n ItemSold) IsNotifiable() bool { return true }

// WaybillRegistered tells the buyer the order shipped.
type WaybillRegistered struct {
	BuyerID     uuid.UUID
	DealID      uuid.UUID
	CarrierCode string
	Number      string
}

func (n WaybillRegistered) Kind() enums.NotificationKind {
	return enums.NotificationKindWaybillRegistered
}
func (n WaybillRegistered) Title() string { return "Order shipped" }
func (n WaybillRegistered) Content() string {
	return fmt.Sprintf("Your order shipped with %s, waybill %s.", n.CarrierCode, n.Number)
}
func (n WaybillRegistered) Link() string       { return fmt.Sprintf("/deals/%s", n.DealID) }
func (n WaybillRegistered) Target() uuid.UUID  { return n.BuyerID }
func (n WaybillRegistered) IsReadable() bool   { return true }
func (n WaybillRegistered) IsNotifiable() bool { return true }

// DealSettled tells the seller a payout was released.
type DealSettled struct {
	SellerID uuid.UUID
	DealID   uuid.UUID
	Amount   int64
}

func (n DealSettled) Kind() enums.NotificationKind { return enums.NotificationKindDealSettled }
func (n DealSettled) Title() string                { return "Payout settled" }
func (n DealSettled) Content() string {
	return fmt.Sprintf("A payout of %d has been settled.", n.Amount)
}
func (n DealSettled) Link() string       { return fmt.Sprintf("/deals/%s", n.DealID) }
func (n DealSettled) Target() uuid.UUID  { return n.SellerID }
func (n DealSettled) IsReadable() bool   { return true }
func (n DealSettled) IsNotifiable() bool { return false }

// RefundRequested asks the seller to approve or reject a refund.
type RefundRequested struct {
	SellerID uuid.UUID
	DealID   uuid.UUID
	Reason   string
}

func (n RefundRequested) Kind() enums.NotificationKind { return enums.NotificationKindRefundRequested }
func (n RefundRequested) Title() string                { return "Refund requested" }
func (n RefundRequested) Content() string {
	if n.Reason == "" {
		return "The buyer requested a refund."
	}
	return fmt.Sprintf("The buyer requested a refund: %s", n.Reason)
}
func (n RefundRequested) Link() string       { return fmt.Sprintf("/deals/%s", n.DealID) }
func (n RefundRequested) Target() uuid.UUID  { return n.SellerID }
func (n RefundRequested) IsReadable() bool   { return true }
func (n RefundRequested) IsNotifiable() bool { return true }

// RefundResolved tells the buyer how the seller decided.
type RefundResolved struct {
	BuyerID  uuid.UUID
	DealID   uuid.UUID
	Approved bool
	Amount   int64
}

func (n RefundResolved) Kind() enums.NotificationKind { return enums.NotificationKindRefundResolved }
func (n RefundResolved) Title() string {
	if n.Approved {
		return "Refund approved"
	}
	return "Refund rejected"
}
func (n RefundResolved) Content() string {
	if n.Approved {
		return fmt.Sprintf("Your refund of %d was approved.", n.Amount)
	}
	return "The seller rejected your refund request."
}
func (n RefundResolved) Link() string       { return fmt.Sprintf("/deals/%s", n.DealID) }
func (n RefundResolved) Target() uuid.UUID  { return n.BuyerID }
func (n RefundResolved) IsReadable() bool   { return true }
func (n RefundResolved) IsNotifiable() bool { return true }
