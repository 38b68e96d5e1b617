package payments

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/dealflow-backend/pkg/square"
)

type squareClient interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
}

// SquareGateway maps the gateway port onto Square payments. Receipt ids are
// Square payment ids.
type SquareGateway struct {
	client squareClient
}

func NewSquareGateway(client squareClient) (*SquareGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{client: client}, nil
}

// Verify completes an authorized payment before reporting it. Only a payment
// Square reports as COMPLETED counts as approved.
func (g *SquareGateway) Verify(ctx context.Context, receiptID string) (*Verification, error) {
	payment, err := g.client.GetPayment(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if square.PaymentStatus(payment) == square.PaymentStatusApproved {
		payment, err = g.client.CompletePayment(ctx, receiptID)
		if err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("encode square payment: %w", err)
	}
	status := GatewayDeclined
	if square.PaymentStatus(payment) == square.PaymentStatusCompleted {
		status = GatewayApproved
	}
	return &Verification{
		ReceiptID: receiptID,
		Status:    status,
		Amount:    square.PaymentAmount(payment),
		Raw:       raw,
	}, nil
}

// Cancel voids an authorized payment outright and refunds anything already
// completed or partial.
func (g *SquareGateway) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if !req.Partial {
		current, err := g.client.GetPayment(ctx, req.ReceiptID)
		if err != nil {
			return nil, err
		}
		switch square.PaymentStatus(current) {
		case square.PaymentStatusApproved:
			payment, err := g.client.CancelPayment(ctx, req.ReceiptID)
			if err != nil {
				return nil, err
			}
			return resultFrom(square.PaymentStatus(payment), payment)
		case square.PaymentStatusCanceled, square.PaymentStatusFailed:
			return resultFrom(square.PaymentStatus(current), current)
		}
	}

	refund, err := g.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      req.ReceiptID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: req.Key,
	})
	if err != nil {
		return nil, err
	}
	status := ""
	if refund.GetStatus() != nil {
		status = *refund.GetStatus()
	}
	return resultFrom(status, refund)
}

func resultFrom(status string, body any) (*CancelResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode square response: %w", err)
	}
	return &CancelResult{Status: status, Raw: raw}, nil
}
