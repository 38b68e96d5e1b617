package enums

import "fmt"

// TradeStatus tracks a single cart line item from selection through settlement or refund.
type TradeStatus string

const (
	TradeStatusPendingPayment    TradeStatus = "pending_payment"
	TradeStatusPaymentConfirming TradeStatus = "payment_confirming"
	TradeStatusGatewayConfirmed  TradeStatus = "gateway_confirmed"
	TradeStatusPaid              TradeStatus = "paid"
	TradeStatusShipped           TradeStatus = "shipped"
	TradeStatusDelivered         TradeStatus = "delivered"
	TradeStatusComplete          TradeStatus = "complete"
	TradeStatusSettled           TradeStatus = "settled"
	TradeStatusRefundRequested   TradeStatus = "refund_requested"
	TradeStatusRefundApproved    TradeStatus = "refund_approved"
	TradeStatusRefunded          TradeStatus = "refunded"
	TradeStatusRefundRejected    TradeStatus = "refund_rejected"
)

var validTradeStatuses = []TradeStatus{
	TradeStatusPendingPayment,
	TradeStatusPaymentConfirming,
	TradeStatusGatewayConfirmed,
	TradeStatusPaid,
	TradeStatusShipped,
	TradeStatusDelivered,
	TradeStatusComplete,
	TradeStatusSettled,
	TradeStatusRefundRequested,
	TradeStatusRefundApproved,
	TradeStatusRefunded,
	TradeStatusRefundRejected,
}

// CartTradeStatuses are the statuses a trade may hold while it still lives in the buyer's cart.
var CartTradeStatuses = []TradeStatus{
	TradeStatusPendingPayment,
	TradeStatusPaymentConfirming,
	TradeStatusGatewayConfirmed,
}

func (s TradeStatus) String() string {
	return string(s)
}

func (s TradeStatus) IsValid() bool {
	for _, candidate := range validTradeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseTradeStatus(value string) (TradeStatus, error) {
	for _, candidate := range validTradeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trade status %q", value)
}
