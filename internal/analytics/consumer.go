package analytics

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/consume"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const consumerName = "settlement-facts"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// rowBuilder turns one decoded payload into the fact rows it contributes.
type rowBuilder func(base settlementFactRow, payload any) ([]*settlementFactRow, error)

var builders = map[enums.OutboxEventType]rowBuilder{
	enums.EventPaymentCaptured: capturedRows,
	enums.EventPaymentCanceled: canceledRows,
	enums.EventDealRefunded:    refundedRows,
	enums.EventDealSettled:     settledRows,
}

// Consumer appends money-flow facts to a BigQuery table, one row per deal
// amount that moved.
type Consumer struct {
	client       tableInserter
	table        string
	logg         *logger.Logger
	subscription *pubsub.Subscriber
	pipeline     *consume.Pipeline
}

// NewConsumer builds the settlement facts consumer. The subscription may be
// nil when deliveries are fed to the pipeline directly.
func NewConsumer(client tableInserter, table string, dedupe consume.Dedupe, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	table = strings.TrimSpace(table)
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if table == "" {
		return nil, errors.New("bigquery table name required")
	}
	c := &Consumer{client: client, table: table, logg: logg, subscription: subscription}
	pipeline, err := consume.New(consume.Params{
		Name:    consumerName,
		Dedupe:  dedupe,
		Logger:  logg,
		Handler: c.ingest,
		Accepts: slices.Collect(maps.Keys(builders)),
	})
	if err != nil {
		return nil, err
	}
	c.pipeline = pipeline
	return c, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.pipeline.Run(ctx, c.subscription)
}

func (c *Consumer) ingest(ctx context.Context, evt consume.Event) error {
	base := settlementFactRow{
		EventID:    evt.ID.String(),
		EventType:  string(evt.Type),
		OccurredAt: evt.Envelope.OccurredAt.UTC(),
	}
	if data := evt.Envelope.Data; len(data) > 0 {
		base.Payload = cbigquery.NullJSON{JSONVal: string(data), Valid: true}
	}
	if actor := evt.Envelope.Actor; actor != nil && actor.Role != "" {
		base.ActorRole = cbigquery.NullString{StringVal: actor.Role, Valid: true}
	}

	rows, err := builders[evt.Type](base, evt.Payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build settlement facts")
	}
	if len(rows) == 0 {
		return nil
	}
	batch := make([]any, len(rows))
	for i, row := range rows {
		batch[i] = row
	}
	if err := c.client.InsertRows(ctx, c.table, batch); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert settlement facts")
	}
	c.logg.Info(c.logg.WithField(ctx, "rows", len(rows)), "settlement facts ingested")
	return nil
}

func unexpectedPayload(want string, got any) error {
	return fmt.Errorf("expected %s payload, got %T", want, got)
}

// FactsSchema is the column layout of the settlement facts table. It mirrors
// the bigquery tags on settlementFactRow.
func FactsSchema() cbigquery.Schema {
	nullable := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ}
	}
	required := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		nullable("payment_id", cbigquery.StringFieldType),
		nullable("deal_id", cbigquery.StringFieldType),
		nullable("wallet_log_id", cbigquery.StringFieldType),
		nullable("buyer_id", cbigquery.StringFieldType),
		nullable("seller_id", cbigquery.StringFieldType),
		required("amount", cbigquery.IntegerFieldType),
		nullable("remain", cbigquery.IntegerFieldType),
		nullable("commission_rate", cbigquery.StringFieldType),
		nullable("actor_role", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

type settlementFactRow struct {
	EventID        string               `bigquery:"event_id"`
	EventType      string               `bigquery:"event_type"`
	OccurredAt     time.Time            `bigquery:"occurred_at"`
	PaymentID      *string              `bigquery:"payment_id"`
	DealID         *string              `bigquery:"deal_id"`
	WalletLogID    *string              `bigquery:"wallet_log_id"`
	BuyerID        *string              `bigquery:"buyer_id"`
	SellerID       *string              `bigquery:"seller_id"`
	Amount         int64                `bigquery:"amount"`
	Remain         cbigquery.NullInt64  `bigquery:"remain"`
	CommissionRate cbigquery.NullString `bigquery:"commission_rate"`
	ActorRole      cbigquery.NullString `bigquery:"actor_role"`
	Payload        cbigquery.NullJSON   `bigquery:"payload"`
}

func capturedRows(base settlementFactRow, payload any) ([]*settlementFactRow, error) {
	event, ok := payload.(*payloads.PaymentCapturedEvent)
	if !ok {
		return nil, unexpectedPayload("payment_captured", payload)
	}
	rows := make([]*settlementFactRow, 0, len(event.Deals))
	for _, deal := range event.Deals {
		row := base
		row.PaymentID = idString(event.PaymentID)
		row.BuyerID = idString(event.BuyerID)
		row.DealID = idString(deal.DealID)
		row.SellerID = idString(deal.SellerID)
		row.WalletLogID = idString(deal.WalletLogID)
		row.Amount = deal.Total
		row.Remain = cbigquery.NullInt64{Int64: deal.Remain, Valid: true}
		row.CommissionRate = cbigquery.NullString{StringVal: deal.CommissionRate, Valid: deal.CommissionRate != ""}
		rows = append(rows, &row)
	}
	return rows, nil
}

func canceledRows(base settlementFactRow, payload any) ([]*settlementFactRow, error) {
	event, ok := payload.(*payloads.PaymentCanceledEvent)
	if !ok {
		return nil, unexpectedPayload("payment_canceled", payload)
	}
	row := base
	row.PaymentID = idString(event.PaymentID)
	row.BuyerID = idString(event.BuyerID)
	row.Amount = -event.CanceledAmount
	return []*settlementFactRow{&row}, nil
}

func refundedRows(base settlementFactRow, payload any) ([]*settlementFactRow, error) {
	event, ok := payload.(*payloads.DealRefundedEvent)
	if !ok {
		return nil, unexpectedPayload("deal_refunded", payload)
	}
	row := base
	row.PaymentID = idString(event.PaymentID)
	row.DealID = idString(event.DealID)
	row.BuyerID = idString(event.BuyerID)
	row.SellerID = idString(event.SellerID)
	row.Amount = -event.Amount
	return []*settlementFactRow{&row}, nil
}

func settledRows(base settlementFactRow, payload any) ([]*settlementFactRow, error) {
	event, ok := payload.(*payloads.DealSettledEvent)
	if !ok {
		return nil, unexpectedPayload("deal_settled", payload)
	}
	row := base
	row.DealID = idString(event.DealID)
	row.SellerID = idString(event.SellerID)
	row.WalletLogID = idString(event.WalletLogID)
	row.Amount = event.Amount
	return []*settlementFactRow{&row}, nil
}

func idString(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	value := id.String()
	return &value
}
