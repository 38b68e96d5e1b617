package enums

import "fmt"

// PaymentStatus tracks one gateway transaction that may span several deals.
type PaymentStatus string

const (
	PaymentStatusPending          PaymentStatus = "pending"
	PaymentStatusConfirming       PaymentStatus = "confirming"
	PaymentStatusApproving        PaymentStatus = "approving"
	PaymentStatusPaid             PaymentStatus = "paid"
	PaymentStatusCancelFailed     PaymentStatus = "cancel_failed"
	PaymentStatusRefundInProgress PaymentStatus = "refund_in_progress"
	PaymentStatusCanceled         PaymentStatus = "canceled"
	PaymentStatusFailedError      PaymentStatus = "failed_error"
	PaymentStatusFailedApproval   PaymentStatus = "failed_approval"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusConfirming,
	PaymentStatusApproving,
	PaymentStatusPaid,
	PaymentStatusCancelFailed,
	PaymentStatusRefundInProgress,
	PaymentStatusCanceled,
	PaymentStatusFailedError,
	PaymentStatusFailedApproval,
}

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// NeedsReconciliation reports statuses that an operator must resolve by hand.
func (s PaymentStatus) NeedsReconciliation() bool {
	return s == PaymentStatusFailedError || s == PaymentStatusCancelFailed
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
