package payments

import (
	"context"
	"encoding/json"
)

// GatewayStatus is the gateway's verdict on a receipt, reduced to what the
// capture flow branches on.
type GatewayStatus string

const (
	GatewayApproved GatewayStatus = "approved"
	GatewayDeclined GatewayStatus = "declined"
)

// Verification is the gateway's view of a receipt.
type Verification struct {
	ReceiptID string
	Status    GatewayStatus
	Amount    int64
	Raw       json.RawMessage
}

// CancelRequest returns money for a receipt. Partial requests refund only
// Amount and leave the rest of the charge in place. Key deduplicates retries
// at the gateway.
type CancelRequest struct {
	ReceiptID string
	Amount    int64
	Reason    string
	Partial   bool
	Key       string
}

// CancelResult echoes what the gateway recorded.
type CancelResult struct {
	Status string
	Raw    json.RawMessage
}

// Gateway is the external payment capability.
type Gateway interface {
	Verify(ctx context.Context, receiptID string) (*Verification, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
}
