package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateDeal         OutboxAggregateType = "deal"
	AggregateDelivery     OutboxAggregateType = "delivery"
	AggregateWalletLog    OutboxAggregateType = "wallet_log"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateDeal,
	AggregateDelivery,
	AggregateWalletLog,
	AggregateNotification,
}

// IsValid reports whether the value matches a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a committed state change published to pub/sub.
type OutboxEventType string

const (
	EventCheckoutCreated       OutboxEventType = "checkout_created"
	EventPaymentCaptured       OutboxEventType = "payment_captured"
	EventPaymentCanceled       OutboxEventType = "payment_canceled"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventDealShipped           OutboxEventType = "deal_shipped"
	EventDealDelivered         OutboxEventType = "deal_delivered"
	EventDealCompleted         OutboxEventType = "deal_completed"
	EventDealSettled           OutboxEventType = "deal_settled"
	EventDealRefundRequested   OutboxEventType = "deal_refund_requested"
	EventDealRefunded          OutboxEventType = "deal_refunded"
	EventDealRefundRejected    OutboxEventType = "deal_refund_rejected"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCheckoutCreated,
	EventPaymentCaptured,
	EventPaymentCanceled,
	EventPaymentFailed,
	EventDealShipped,
	EventDealDelivered,
	EventDealCompleted,
	EventDealSettled,
	EventDealRefundRequested,
	EventDealRefunded,
	EventDealRefundRejected,
	EventNotificationRequested,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
