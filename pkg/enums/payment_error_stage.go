package enums

// PaymentErrorStage records where in the capture or refund flow a gateway problem surfaced.
// Commit means the gateway call succeeded but recording its outcome did not.
type PaymentErrorStage string

const (
	PaymentErrorStageVerify         PaymentErrorStage = "verify"
	PaymentErrorStageAmountMismatch PaymentErrorStage = "amount_mismatch"
	PaymentErrorStageCancel         PaymentErrorStage = "cancel"
	PaymentErrorStageRefund         PaymentErrorStage = "refund"
	PaymentErrorStageCommit         PaymentErrorStage = "commit"
)
