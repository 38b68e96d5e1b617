package enums

import "fmt"

// DealStatus mirrors TradeStatus at the seller-scoped aggregate level.
type DealStatus string

const (
	DealStatusPaymentConfirming DealStatus = "payment_confirming"
	DealStatusGatewayConfirmed  DealStatus = "gateway_confirmed"
	DealStatusPaid              DealStatus = "paid"
	DealStatusShipped           DealStatus = "shipped"
	DealStatusDelivered         DealStatus = "delivered"
	DealStatusComplete          DealStatus = "complete"
	DealStatusSettled           DealStatus = "settled"
	DealStatusRefundRequested   DealStatus = "refund_requested"
	DealStatusRefundApproved    DealStatus = "refund_approved"
	DealStatusRefunded          DealStatus = "refunded"
	DealStatusRefundRejected    DealStatus = "refund_rejected"
)

var validDealStatuses = []DealStatus{
	DealStatusPaymentConfirming,
	DealStatusGatewayConfirmed,
	DealStatusPaid,
	DealStatusShipped,
	DealStatusDelivered,
	DealStatusComplete,
	DealStatusSettled,
	DealStatusRefundRequested,
	DealStatusRefundApproved,
	DealStatusRefunded,
	DealStatusRefundRejected,
}

// AutoCompletableDealStatuses can be moved to complete by the grace-period timer.
var AutoCompletableDealStatuses = []DealStatus{
	DealStatusShipped,
	DealStatusDelivered,
	DealStatusRefundRejected,
}

func (s DealStatus) String() string {
	return string(s)
}

func (s DealStatus) IsValid() bool {
	for _, candidate := range validDealStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TradeStatus returns the line-item status that moves in lockstep with the deal.
func (s DealStatus) TradeStatus() TradeStatus {
	return TradeStatus(s)
}

func ParseDealStatus(value string) (DealStatus, error) {
	for _, candidate := range validDealStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deal status %q", value)
}
