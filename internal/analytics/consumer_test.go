package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/consume"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

type fakeInserter struct {
	table string
	rows  []any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.table = table
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeIdempotency struct {
	seen    bool
	checks  int
	deleted bool
}

func (f *fakeIdempotency) CheckAndMarkProcessed(context.Context, string, uuid.UUID) (bool, error) {
	f.checks++
	return f.seen, nil
}

func (f *fakeIdempotency) Delete(context.Context, string, uuid.UUID) error {
	f.deleted = true
	return nil
}

func newTestConsumer(t *testing.T, inserter *fakeInserter, dedupe *fakeIdempotency) *Consumer {
	t.Helper()
	c, err := NewConsumer(inserter, " settlement_facts ", dedupe, nil, logger.New(logger.Options{
		ServiceName: "analytics-test",
		Level:       logger.ParseLevel("debug"),
		Output:      io.Discard,
	}))
	require.NoError(t, err)
	return c
}

func envelope(t *testing.T, payload any) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: data}
}

func feed(t *testing.T, c *Consumer, eventType enums.OutboxEventType, env outbox.PayloadEnvelope) consume.Verdict {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return c.pipeline.Handle(context.Background(), consume.Delivery{
		MessageID:  "m-" + env.EventID,
		Attributes: map[string]string{"event_type": string(eventType)},
		Data:       raw,
	})
}

func TestCapturedPaymentWritesOneRowPerDeal(t *testing.T) {
	inserter := &fakeInserter{}
	c := newTestConsumer(t, inserter, &fakeIdempotency{})
	paymentID, buyerID, first := uuid.New(), uuid.New(), uuid.New()

	verdict := feed(t, c, enums.EventPaymentCaptured, envelope(t, payloads.PaymentCapturedEvent{
		PaymentID: paymentID,
		BuyerID:   buyerID,
		ReceiptID: "rcpt-1",
		Amount:    25000,
		Deals: []payloads.CapturedDeal{
			{DealID: first, SellerID: uuid.New(), WalletLogID: uuid.New(), Total: 13000, Remain: 12350, CommissionRate: "0.05"},
			{DealID: uuid.New(), SellerID: uuid.New(), WalletLogID: uuid.New(), Total: 12000, Remain: 11400, CommissionRate: "0.05"},
		},
	}))

	require.Equal(t, consume.Ack, verdict)
	require.Equal(t, "settlement_facts", inserter.table)
	require.Len(t, inserter.rows, 2)
	row := inserter.rows[0].(*settlementFactRow)
	require.Equal(t, string(enums.EventPaymentCaptured), row.EventType)
	require.Equal(t, paymentID.String(), *row.PaymentID)
	require.Equal(t, first.String(), *row.DealID)
	require.Equal(t, int64(13000), row.Amount)
	require.True(t, row.Remain.Valid)
	require.Equal(t, int64(12350), row.Remain.Int64)
	require.Equal(t, "0.05", row.CommissionRate.StringVal)
	require.True(t, row.Payload.Valid)
}

func TestRefundIsRecordedAsNegativeAmount(t *testing.T) {
	inserter := &fakeInserter{}
	c := newTestConsumer(t, inserter, &fakeIdempotency{})
	env := envelope(t, payloads.DealRefundedEvent{DealID: uuid.New(), PaymentID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(), Amount: 13000})
	env.Actor = &outbox.ActorRef{UserID: uuid.New(), Role: "user"}

	require.Equal(t, consume.Ack, feed(t, c, enums.EventDealRefunded, env))
	row := inserter.rows[0].(*settlementFactRow)
	require.Equal(t, int64(-13000), row.Amount)
	require.Equal(t, "user", row.ActorRole.StringVal)
	require.False(t, row.Remain.Valid, "refund rows carry no remain")
}

func TestCanceledPaymentIsNegative(t *testing.T) {
	inserter := &fakeInserter{}
	c := newTestConsumer(t, inserter, &fakeIdempotency{})

	require.Equal(t, consume.Ack, feed(t, c, enums.EventPaymentCanceled, envelope(t, payloads.PaymentCanceledEvent{PaymentID: uuid.New(), CanceledAmount: 4000})))
	require.Equal(t, int64(-4000), inserter.rows[0].(*settlementFactRow).Amount)
	require.Nil(t, inserter.rows[0].(*settlementFactRow).DealID)
}

func TestUnhandledEventsAreIgnored(t *testing.T) {
	inserter := &fakeInserter{}
	dedupe := &fakeIdempotency{}
	c := newTestConsumer(t, inserter, dedupe)

	require.Equal(t, consume.Ack, feed(t, c, enums.EventDealShipped, envelope(t, map[string]any{"deal_id": uuid.NewString()})))
	require.Empty(t, inserter.rows)
	require.Zero(t, dedupe.checks)
}

func TestDuplicateDeliveryInsertsNothing(t *testing.T) {
	inserter := &fakeInserter{}
	c := newTestConsumer(t, inserter, &fakeIdempotency{seen: true})

	require.Equal(t, consume.Ack, feed(t, c, enums.EventDealSettled, envelope(t, payloads.DealSettledEvent{DealID: uuid.New(), Amount: 100})))
	require.Empty(t, inserter.rows)
}

func TestInsertFailureIsRedelivered(t *testing.T) {
	dedupe := &fakeIdempotency{}
	c := newTestConsumer(t, &fakeInserter{err: errors.New("bigquery down")}, dedupe)

	require.Equal(t, consume.Nack, feed(t, c, enums.EventDealSettled, envelope(t, payloads.DealSettledEvent{DealID: uuid.New(), Amount: 100})))
	require.True(t, dedupe.deleted)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	inserter := &fakeInserter{}
	dedupe := &fakeIdempotency{}
	c := newTestConsumer(t, inserter, dedupe)
	env := envelope(t, nil)
	env.Data = json.RawMessage(`{"canceled_amount":"lots"}`)

	require.Equal(t, consume.Ack, feed(t, c, enums.EventPaymentCanceled, env))
	require.False(t, dedupe.deleted)
	require.Empty(t, inserter.rows)
}

func TestUnknownSchemaVersionWaitsForNewerDeploy(t *testing.T) {
	inserter := &fakeInserter{}
	dedupe := &fakeIdempotency{}
	c := newTestConsumer(t, inserter, dedupe)
	env := envelope(t, payloads.DealSettledEvent{Amount: 9650})
	env.Version = 2

	require.Equal(t, consume.Nack, feed(t, c, enums.EventDealSettled, env))
	require.True(t, dedupe.deleted)
	require.Empty(t, inserter.rows)
}

func TestUnversionedEnvelopeDecodesAsV1(t *testing.T) {
	inserter := &fakeInserter{}
	c := newTestConsumer(t, inserter, &fakeIdempotency{})
	env := envelope(t, payloads.DealSettledEvent{DealID: uuid.New(), Amount: 9650})
	env.Version = 0

	require.Equal(t, consume.Ack, feed(t, c, enums.EventDealSettled, env))
	require.Len(t, inserter.rows, 1)
	require.Equal(t, int64(9650), inserter.rows[0].(*settlementFactRow).Amount)
}

func TestNewConsumerValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
	_, err := NewConsumer(nil, "t", &fakeIdempotency{}, nil, logg)
	require.Error(t, err)
	_, err = NewConsumer(&fakeInserter{}, " ", &fakeIdempotency{}, nil, logg)
	require.Error(t, err)
	_, err = NewConsumer(&fakeInserter{}, "t", nil, nil, logg)
	require.Error(t, err)
}

func TestFactsSchemaMatchesRowTags(t *testing.T) {
	var columns []string
	for _, field := range FactsSchema() {
		columns = append(columns, field.Name)
	}
	var tags []string
	rowType := reflect.TypeOf(settlementFactRow{})
	for i := range rowType.NumField() {
		tags = append(tags, rowType.Field(i).Tag.Get("bigquery"))
	}
	require.Equal(t, tags, columns)
}
