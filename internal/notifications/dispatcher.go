package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const notifySavepoint = "notify_dispatch"

// Notifier is the fire-and-forget notification port used by the money flow.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, notices ...Notice)
}

// Dispatcher queues notices as notification_requested outbox rows inside the
// caller's transaction. Failures are logged and rolled back to a savepoint so
// they never abort the caller.
type Dispatcher struct {
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewDispatcher(emitter outbox.Emitter, logg *logger.Logger) (*Dispatcher, error) {
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{outbox: emitter, logg: logg}, nil
}

func (d *Dispatcher) Notify(ctx context.Context, tx *gorm.DB, notices ...Notice) {
	if len(notices) == 0 {
		return
	}
	if tx == nil {
		d.logg.Warn(ctx, "notification dropped: no transaction")
		return
	}
	if err := tx.SavePoint(notifySavepoint).Error; err != nil {
		d.logg.Error(ctx, "notification savepoint failed", err)
		return
	}
	for _, notice := range notices {
		if notice == nil {
			continue
		}
		if err := d.emit(ctx, tx, notice); err != nil {
			d.logg.Error(d.logg.WithField(ctx, "kind", notice.Kind()), "notification dispatch failed", err)
			if rbErr := tx.RollbackTo(notifySavepoint).Error; rbErr != nil {
				d.logg.Error(ctx, "notification savepoint rollback failed", rbErr)
			}
			return
		}
	}
}

func (d *Dispatcher) emit(ctx context.Context, tx *gorm.DB, notice Notice) error {
	target := notice.Target()
	if target == uuid.Nil {
		return fmt.Errorf("notice %s has no target", notice.Kind())
	}
	return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   target,
		Data:          RequestFor(notice),
	})
}

// RequestFor flattens a notice into its wire payload.
func RequestFor(notice Notice) payloads.NotificationRequestedEvent {
	return payloads.NotificationRequestedEvent{
		UserID:     notice.Target(),
		Kind:       notice.Kind(),
		Title:      notice.Title(),
		Content:    notice.Content(),
		Link:       notice.Link(),
		Readable:   notice.IsReadable(),
		Notifiable: notice.IsNotifiable(),
	}
}

// Discard drops every notice. Used where notifications are not wired.
type Discard struct{}

func (Discard) Notify(context.Context, *gorm.DB, ...Notice) {}
