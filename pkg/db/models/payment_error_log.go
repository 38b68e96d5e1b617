package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// PaymentErrorLog records a gateway anomaly that needs manual reconciliation.
type PaymentErrorLog struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID      uuid.UUID               `gorm:"column:payment_id;type:uuid;not null;index"`
	Stage          enums.PaymentErrorStage `gorm:"column:stage;type:text;not null"`
	ReceiptID      *string                 `gorm:"column:receipt_id"`
	Message        string                  `gorm:"column:message;not null"`
	ExpectedAmount *int64                  `gorm:"column:expected_amount"`
	ActualAmount   *int64                  `gorm:"column:actual_amount"`
	Detail         json.RawMessage         `gorm:"column:detail;type:jsonb"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}
