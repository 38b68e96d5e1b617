package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// RefundCreateParams describes a refund against a completed payment.
type RefundCreateParams struct {
	PaymentID      string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundCreateParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.Amount, p.Currency),
		PaymentID:      ptrString(strings.TrimSpace(p.PaymentID)),
	}
	if trimmed := strings.TrimSpace(p.Reason); trimmed != "" {
		req.Reason = ptrString(trimmed)
	}
	return req
}

// Square payment statuses as returned by the Payments API.
const (
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusFailed    = "FAILED"
)

// PaymentAmount returns the charged amount in minor units, or 0 when absent.
func PaymentAmount(payment *sq.Payment) int64 {
	if payment == nil {
		return 0
	}
	money := payment.GetTotalMoney()
	if money == nil || money.Amount == nil {
		money = payment.GetAmountMoney()
	}
	if money == nil || money.Amount == nil {
		return 0
	}
	return *money.Amount
}

// PaymentStatus returns the upper-cased status string of payment.
func PaymentStatus(payment *sq.Payment) string {
	if payment == nil {
		return ""
	}
	return strings.ToUpper(stringValue(payment.GetStatus()))
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "KRW"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
