package enums

import "fmt"

// NotificationKind identifies which notice variant produced a notification row.
type NotificationKind string

const (
	NotificationKindPaymentCompleted  NotificationKind = "payment_completed"
	NotificationKindItemSold          NotificationKind = "item_sold"
	NotificationKindWaybillRegistered NotificationKind = "waybill_registered"
	NotificationKindDealSettled       NotificationKind = "deal_settled"
	NotificationKindRefundRequested   NotificationKind = "refund_requested"
	NotificationKindRefundResolved    NotificationKind = "refund_resolved"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindPaymentCompleted,
	NotificationKindItemSold,
	NotificationKindWaybillRegistered,
	NotificationKindDealSettled,
	NotificationKindRefundRequested,
	NotificationKindRefundResolved,
}

// IsValid checks whether the given kind matches a known variant.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
