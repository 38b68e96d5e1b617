package enums

type transitionTable[S ~string] map[S][]S

func (t transitionTable[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

var tradeTransitions = transitionTable[TradeStatus]{
	TradeStatusPendingPayment:    {TradeStatusPaymentConfirming},
	TradeStatusPaymentConfirming: {TradeStatusGatewayConfirmed, TradeStatusPaid, TradeStatusRefunded, TradeStatusPendingPayment},
	TradeStatusGatewayConfirmed:  {TradeStatusPaid, TradeStatusRefunded},
	TradeStatusPaid:              {TradeStatusShipped, TradeStatusRefundRequested},
	TradeStatusShipped:           {TradeStatusDelivered, TradeStatusComplete, TradeStatusRefundRequested},
	TradeStatusDelivered:         {TradeStatusComplete, TradeStatusRefundRequested},
	TradeStatusComplete:          {TradeStatusSettled},
	TradeStatusRefundRequested:   {TradeStatusRefundApproved, TradeStatusRefundRejected},
	TradeStatusRefundApproved:    {TradeStatusRefunded},
	TradeStatusRefundRejected:    {TradeStatusShipped, TradeStatusComplete},
}

var dealTransitions = transitionTable[DealStatus]{
	DealStatusPaymentConfirming: {DealStatusGatewayConfirmed, DealStatusPaid, DealStatusRefunded},
	DealStatusGatewayConfirmed:  {DealStatusPaid, DealStatusRefunded},
	DealStatusPaid:              {DealStatusShipped, DealStatusRefundRequested},
	DealStatusShipped:           {DealStatusDelivered, DealStatusComplete, DealStatusRefundRequested},
	DealStatusDelivered:         {DealStatusComplete, DealStatusRefundRequested},
	DealStatusComplete:          {DealStatusSettled},
	DealStatusRefundRequested:   {DealStatusRefundApproved, DealStatusRefundRejected},
	DealStatusRefundApproved:    {DealStatusRefunded},
	DealStatusRefundRejected:    {DealStatusShipped, DealStatusComplete},
}

var paymentTransitions = transitionTable[PaymentStatus]{
	PaymentStatusPending:    {PaymentStatusConfirming, PaymentStatusCanceled},
	PaymentStatusConfirming: {PaymentStatusApproving},
	PaymentStatusApproving: {
		PaymentStatusPaid,
		PaymentStatusCanceled,
		PaymentStatusFailedError,
		PaymentStatusFailedApproval,
		PaymentStatusCancelFailed,
	},
	PaymentStatusPaid:             {PaymentStatusRefundInProgress},
	PaymentStatusRefundInProgress: {PaymentStatusPaid, PaymentStatusCanceled, PaymentStatusCancelFailed},
	PaymentStatusCancelFailed:     {PaymentStatusCanceled},
}

var walletLogTransitions = transitionTable[WalletLogStatus]{
	WalletLogStatusPending: {WalletLogStatusSettled, WalletLogStatusRefunded, WalletLogStatusOther},
}

// CanTransitionTrade reports whether a trade may move from one status to another.
func CanTransitionTrade(from, to TradeStatus) bool {
	return tradeTransitions.allows(from, to)
}

// CanTransitionDeal reports whether a deal may move from one status to another.
func CanTransitionDeal(from, to DealStatus) bool {
	return dealTransitions.allows(from, to)
}

// CanTransitionPayment reports whether a payment may move from one status to another.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return paymentTransitions.allows(from, to)
}

// CanTransitionWalletLog reports whether a wallet log may move from one status to another.
func CanTransitionWalletLog(from, to WalletLogStatus) bool {
	return walletLogTransitions.allows(from, to)
}

// CanAdvanceDelivery allows step0 to step1 through waybill registration and
// strictly forward carrier updates from there on.
func CanAdvanceDelivery(from, to DeliveryStep) bool {
	fromIdx, toIdx := from.Ordinal(), to.Ordinal()
	if fromIdx < 0 || toIdx < 0 {
		return false
	}
	if from == DeliveryStep0 {
		return to == DeliveryStep1
	}
	return toIdx > fromIdx
}

// IsTerminal reports whether no further payment transition exists.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// IsTerminal reports whether no further deal transition exists.
func (s DealStatus) IsTerminal() bool {
	return len(dealTransitions[s]) == 0
}
