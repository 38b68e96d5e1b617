package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic", NotificationTopic: "notification-topic"})
	require.NoError(t, err)
	return reg
}

func envelope(t *testing.T, data string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func TestResolveDecodesCapturedPayment(t *testing.T) {
	dealID := uuid.New()
	data, err := json.Marshal(payloads.PaymentCapturedEvent{
		PaymentID: uuid.New(),
		Amount:    13000,
		Deals:     []payloads.CapturedDeal{{DealID: dealID, Total: 13000, Remain: 12650}},
	})
	require.NoError(t, err)

	resolved, err := testRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, string(data)),
	})
	require.NoError(t, err)
	require.Equal(t, "domain-topic", resolved.Descriptor.Topic)
	require.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.PaymentCapturedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, dealID, payload.Deals[0].DealID)
	require.EqualValues(t, 12650, payload.Deals[0].Remain)
}

func TestDescriptorRoutes(t *testing.T) {
	reg := testRegistry(t)

	notice, ok := reg.Descriptor(enums.EventNotificationRequested)
	require.True(t, ok)
	require.Equal(t, "notification-topic", notice.Topic)

	settled, ok := reg.Descriptor(enums.EventDealSettled)
	require.True(t, ok)
	require.Equal(t, enums.AggregateWalletLog, settled.AggregateType)
	require.Equal(t, "domain-topic", settled.Topic)

	_, ok = reg.Descriptor("ad_created")
	require.False(t, ok)
	require.Len(t, EventTypes(), 12)
}

func TestResolveRejectsBrokenRowsPermanently(t *testing.T) {
	cases := map[string]models.OutboxEvent{
		"unknown type":       {EventType: "ad_created", AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: envelope(t, `{}`)},
		"aggregate mismatch": {EventType: enums.EventPaymentCaptured, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: envelope(t, `{}`)},
		"missing aggregate":  {EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, Payload: envelope(t, `{}`)},
		"null data":          {EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: envelope(t, `null`)},
		"bad envelope":       {EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: json.RawMessage(`[]`)},
		"bad data":           {EventType: enums.EventDealCompleted, AggregateType: enums.AggregateDeal, AggregateID: uuid.New(), Payload: envelope(t, `{"deal_id":7}`)},
	}
	reg := testRegistry(t)
	for name, event := range cases {
		_, err := reg.Resolve(event)
		require.Error(t, err, name)
		require.True(t, IsPermanent(err), name)
	}
}

func TestPermanent(t *testing.T) {
	cause := errors.New("no publisher")
	err := Permanent(cause)
	require.ErrorIs(t, err, cause)
	require.True(t, IsPermanent(err))
	require.False(t, IsPermanent(cause))
	require.NoError(t, Permanent(nil))
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"})
	require.Error(t, err)
	_, err = NewEventRegistry(config.PubSubConfig{DomainTopic: "d"})
	require.Error(t, err)
}

func TestPayloadDecoders(t *testing.T) {
	reg := PayloadDecoders()
	for _, eventType := range EventTypes() {
		_, err := reg.Decode(eventType, 1, json.RawMessage(`{}`))
		require.NoError(t, err, eventType)
	}

	out, err := reg.Decode(enums.EventDealSettled, 0, json.RawMessage(`{"amount":9650}`))
	require.NoError(t, err)
	require.IsType(t, &payloads.DealSettledEvent{}, out)

	_, err = reg.Decode(enums.EventDealSettled, 2, json.RawMessage(`{}`))
	require.ErrorContains(t, err, "no decoder for deal_settled v2")
	_, err = reg.Decode(enums.EventDealSettled, 1, json.RawMessage(`[`))
	require.Error(t, err)

	custom := NewDecoderRegistry()
	custom.Register(enums.EventDealSettled, 2, func(raw json.RawMessage) (any, error) { return string(raw), nil })
	out, err = custom.Decode(enums.EventDealSettled, 2, json.RawMessage(`"v2"`))
	require.NoError(t, err)
	require.Equal(t, `"v2"`, out)
}
