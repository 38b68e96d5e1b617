// Package consume is the subscriber half of the outbox: it turns a Pub/Sub
// delivery into a decoded, deduplicated event and decides whether the
// message is acked or redelivered.
package consume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/registry"
)

type Verdict int

const (
	Ack Verdict = iota
	Nack
)

func (v Verdict) String() string {
	if v == Nack {
		return "nack"
	}
	return "ack"
}

// Dedupe marks event ids as processed per consumer.
type Dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Delivery is the transport-neutral part of a Pub/Sub message.
type Delivery struct {
	MessageID  string
	Attributes map[string]string
	Data       []byte
}

// Event is a delivery that passed envelope, dedupe and payload decoding.
type Event struct {
	ID       uuid.UUID
	Type     enums.OutboxEventType
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Handler acts on one event. Errors that pkg/errors classifies as retryable
// redeliver the message; anything else is acked and logged.
type Handler func(ctx context.Context, evt Event) error

type Params struct {
	Name    string
	Dedupe  Dedupe
	Logger  *logger.Logger
	Handler Handler
	// Accepts limits which event types reach Handler; the rest are acked
	// untouched. Required.
	Accepts []enums.OutboxEventType
}

type Pipeline struct {
	name     string
	dedupe   Dedupe
	logg     *logger.Logger
	handle   Handler
	accepts  map[enums.OutboxEventType]bool
	decoders *registry.DecoderRegistry
}

func New(p Params) (*Pipeline, error) {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return nil, errors.New("consumer name required")
	case p.Dedupe == nil:
		return nil, errors.New("idempotency manager required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Handler == nil:
		return nil, errors.New("handler required")
	case len(p.Accepts) == 0:
		return nil, errors.New("at least one event type required")
	}
	accepts := make(map[enums.OutboxEventType]bool, len(p.Accepts))
	for _, t := range p.Accepts {
		accepts[t] = true
	}
	return &Pipeline{
		name:     strings.TrimSpace(p.Name),
		dedupe:   p.Dedupe,
		logg:     p.Logger,
		handle:   p.Handler,
		accepts:  accepts,
		decoders: registry.PayloadDecoders(),
	}, nil
}

func (p *Pipeline) Name() string { return p.name }

// Run receives from sub until ctx ends.
func (p *Pipeline) Run(ctx context.Context, sub *pubsub.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("%s: subscription required", p.name)
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if p.Handle(ctx, Delivery{MessageID: msg.ID, Attributes: msg.Attributes, Data: msg.Data}) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle runs one delivery through the pipeline. Malformed messages are
// acked since redelivery cannot fix them. A failed dedupe lookup or a
// retryable handler error releases the marker and nacks.
func (p *Pipeline) Handle(ctx context.Context, d Delivery) Verdict {
	ctx = p.logg.WithFields(ctx, map[string]any{"consumer": p.name, "message_id": d.MessageID})

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(d.Attributes["event_type"]))
	if err != nil || !p.accepts[eventType] {
		p.logg.Debug(p.logg.WithField(ctx, "event_type", d.Attributes["event_type"]), "event not handled")
		return Ack
	}
	ctx = p.logg.WithField(ctx, "event_type", eventType)

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(d.Data, &env); err != nil {
		p.logg.Error(ctx, "undecodable envelope dropped", err)
		return Ack
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		p.logg.Error(ctx, "envelope without a valid event id dropped", err)
		return Ack
	}
	ctx = p.logg.WithField(ctx, "event_id", eventID.String())

	seen, err := p.dedupe.CheckAndMarkProcessed(ctx, p.name, eventID)
	if err != nil {
		p.logg.Error(ctx, "idempotency check failed", err)
		return Nack
	}
	if seen {
		p.logg.Info(ctx, "duplicate delivery skipped")
		return Ack
	}

	payload, err := p.decoders.Decode(eventType, env.Version, env.Data)
	switch {
	case errors.Is(err, registry.ErrNoDecoder):
		// a newer deployment may know this version
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payload")
	case err != nil:
		err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payload")
	default:
		err = p.handle(ctx, Event{ID: eventID, Type: eventType, Envelope: env, Payload: payload})
	}
	if err == nil {
		p.logg.Debug(ctx, "event handled")
		return Ack
	}
	if !pkgerrors.Retryable(err) {
		p.logg.Error(ctx, "event rejected", err)
		return Ack
	}
	p.logg.Error(ctx, "event failed, will be redelivered", err)
	if err := p.dedupe.Delete(ctx, p.name, eventID); err != nil {
		p.logg.Error(ctx, "release idempotency marker failed", err)
	}
	return Nack
}
