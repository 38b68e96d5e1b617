package registry

import (
	"encoding/json"
	"errors"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

type route uint8

const (
	routeDomain route = iota
	routeNotification
)

// eventSpec is what every outbox event type must declare: the aggregate its
// rows are keyed by, where it is published and how its data decodes.
type eventSpec struct {
	aggregate enums.OutboxAggregateType
	route     route
	decode    func(json.RawMessage) (any, error)
}

// catalog lists every event the outbox may carry. Decoded payloads are
// pointers into the payloads package.
var catalog = map[enums.OutboxEventType]eventSpec{
	enums.EventCheckoutCreated:     {enums.AggregatePayment, routeDomain, decodeAs[payloads.CheckoutCreatedEvent]},
	enums.EventPaymentCaptured:     {enums.AggregatePayment, routeDomain, decodeAs[payloads.PaymentCapturedEvent]},
	enums.EventPaymentCanceled:     {enums.AggregatePayment, routeDomain, decodeAs[payloads.PaymentCanceledEvent]},
	enums.EventPaymentFailed:       {enums.AggregatePayment, routeDomain, decodeAs[payloads.PaymentFailedEvent]},
	enums.EventDealShipped:         {enums.AggregateDelivery, routeDomain, decodeAs[payloads.DealStatusEvent]},
	enums.EventDealDelivered:       {enums.AggregateDelivery, routeDomain, decodeAs[payloads.DealStatusEvent]},
	enums.EventDealCompleted:       {enums.AggregateDeal, routeDomain, decodeAs[payloads.DealStatusEvent]},
	enums.EventDealRefundRequested: {enums.AggregateDeal, routeDomain, decodeAs[payloads.DealStatusEvent]},
	enums.EventDealRefundRejected:  {enums.AggregateDeal, routeDomain, decodeAs[payloads.DealStatusEvent]},
	enums.EventDealRefunded:        {enums.AggregateDeal, routeDomain, decodeAs[payloads.DealRefundedEvent]},
	// settlement rows are keyed by the wallet log they close
	enums.EventDealSettled: {enums.AggregateWalletLog, routeDomain, decodeAs[payloads.DealSettledEvent]},

	enums.EventNotificationRequested: {enums.AggregateNotification, routeNotification, decodeAs[payloads.NotificationRequestedEvent]},
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventTypes lists the catalog in no particular order.
func EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	return out
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that no retry can fix; the publisher dead
// letters such rows at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
