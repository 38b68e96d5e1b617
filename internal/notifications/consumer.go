package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/consume"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const consumerName = "notification-requests"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Pusher hands notifiable notices to the push delivery collaborator.
type Pusher interface {
	Push(ctx context.Context, req payloads.NotificationRequestedEvent) error
}

// LogPusher records push requests in the service log. Device delivery is
// owned by a separate system that tails these entries.
type LogPusher struct {
	Logger *logger.Logger
}

func (p LogPusher) Push(ctx context.Context, req payloads.NotificationRequestedEvent) error {
	if p.Logger != nil {
		p.Logger.Info(p.Logger.WithFields(ctx, map[string]any{
			"user_id": req.UserID.String(),
			"kind":    req.Kind,
			"title":   req.Title,
		}), "push requested")
	}
	return nil
}

// Consumer turns notification_requested events into inbox rows and pushes.
type Consumer struct {
	repo         repository
	pusher       Pusher
	logg         *logger.Logger
	subscription *pubsub.Subscriber
	pipeline     *consume.Pipeline
}

func NewConsumer(repo repository, subscription *pubsub.Subscriber, dedupe consume.Dedupe, pusher Pusher, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("notification subscription required")
	}
	c, err := newConsumer(repo, dedupe, pusher, logg)
	if err != nil {
		return nil, err
	}
	c.subscription = subscription
	return c, nil
}

func newConsumer(repo repository, dedupe consume.Dedupe, pusher Pusher, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if pusher == nil {
		pusher = LogPusher{Logger: logg}
	}
	c := &Consumer{repo: repo, pusher: pusher, logg: logg}
	pipeline, err := consume.New(consume.Params{
		Name:    consumerName,
		Dedupe:  dedupe,
		Logger:  logg,
		Handler: c.handle,
		Accepts: []enums.OutboxEventType{enums.EventNotificationRequested},
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

func (c *Consumer) handle(ctx context.Context, evt consume.Event) error {
	req, ok := evt.Payload.(*payloads.NotificationRequestedEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unexpected payload %T", evt.Payload))
	}
	if req.UserID == uuid.Nil || !req.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification request without a target or kind")
	}

	if req.Readable {
		n := &models.Notification{
			UserID:  req.UserID,
			Kind:    req.Kind,
			Title:   req.Title,
			Content: strings.TrimSpace(req.Content),
		}
		if link := req.Link; link != "" {
			n.Link = &link
		}
		if err := c.repo.Create(ctx, n); err != nil {
			return err
		}
	}
	// a lost push is not worth redelivering the inbox write for
	if req.Notifiable {
		if err := c.pusher.Push(ctx, *req); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "push request failed")
		}
	}
	return nil
}
