package deliveries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const maxWaybillLength = 64

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records shipment progress reported by sellers and carriers.
type Service interface {
	RegisterWaybill(ctx context.Context, input WaybillInput) (*models.Delivery, error)
	RecordTracking(ctx context.Context, deliveryID uuid.UUID, step enums.DeliveryStep) (*models.Delivery, error)
}

// WaybillInput is the seller's shipment registration.
type WaybillInput struct {
	SellerID    uuid.UUID
	DeliveryID  uuid.UUID
	CarrierCode string
	Number      string
}

type service struct {
	repo     Repository
	deals    deals.Repository
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifications.Notifier
	now      func() time.Time
}

// NewService wires delivery tracking.
func NewService(repo Repository, dealRepo deals.Repository, tx txRunner, emitter outbox.Emitter, notifier notifications.Notifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if dealRepo == nil {
		return nil, fmt.Errorf("deals repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if notifier == nil {
		notifier = notifications.Discard{}
	}
	return &service{
		repo:     repo,
		deals:    dealRepo,
		tx:       tx,
		outbox:   emitter,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// RegisterWaybill writes the carrier and waybill once and ships the deal. A
// second registration fails with CONFLICT and changes nothing.
func (s *service) RegisterWaybill(ctx context.Context, input WaybillInput) (*models.Delivery, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	carrier := strings.ToLower(strings.TrimSpace(input.CarrierCode))
	number := strings.TrimSpace(input.Number)
	if carrier == "" || number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier code and waybill number required")
	}
	if len(number) > maxWaybillLength || len(carrier) > maxWaybillLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waybill fields too long")
	}

	var result *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dealRepo := s.deals.WithTx(tx)

		delivery, err := repo.FindForUpdate(ctx, input.DeliveryID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}
		if delivery.SenderID != input.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "delivery does not belong to seller")
		}
		if delivery.State != enums.DeliveryStep0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "waybill already registered")
		}

		deal, err := dealRepo.FindForUpdate(ctx, delivery.DealID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}

		now := s.now()
		rows, err := repo.SetWaybill(ctx, delivery.ID, carrier, number, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register waybill")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "waybill already registered")
		}
		if err := deals.Transition(ctx, dealRepo, deal, enums.DealStatusShipped, nil); err != nil {
			return err
		}

		delivery.CarrierCode = &carrier
		delivery.WaybillNumber = &number
		delivery.NumberCreatedTime = &now
		delivery.State = enums.DeliveryStep1
		result = delivery

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealShipped,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: string(enums.RoleUser)},
			OccurredAt:    now,
			Data: payloads.DealStatusEvent{
				DealID:    deal.ID,
				PaymentID: deal.PaymentID,
				BuyerID:   deal.BuyerID,
				SellerID:  deal.SellerID,
				Status:    deal.Status,
				At:        now,
			},
		}); err != nil {
			return err
		}
		s.notifier.Notify(ctx, tx, notifications.WaybillRegistered{
			BuyerID:     deal.BuyerID,
			DealID:      deal.ID,
			CarrierCode: carrier,
			Number:      number,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordTracking applies a carrier progress report. Reports repeating the
// current step are ignored; older steps are rejected.
func (s *service) RecordTracking(ctx context.Context, deliveryID uuid.UUID, step enums.DeliveryStep) (*models.Delivery, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	if step.Ordinal() < enums.DeliveryStep2.Ordinal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking step must be between step2 and step6")
	}

	var result *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		delivery, err := repo.FindForUpdate(ctx, deliveryID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}
		result = delivery
		if delivery.State == step {
			return nil
		}
		if delivery.State == enums.DeliveryStep0 || !enums.CanAdvanceDelivery(delivery.State, step) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("delivery cannot move from %s to %s", delivery.State, step))
		}

		now := s.now()
		var deliveredAt *time.Time
		if step.IsDelivered() {
			deliveredAt = &now
		}
		rows, err := repo.Advance(ctx, delivery.ID, delivery.State, step, deliveredAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance delivery")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery state changed concurrently")
		}
		delivery.State = step
		delivery.DeliveredAt = deliveredAt

		if !step.IsDelivered() {
			return nil
		}
		return s.markDelivered(ctx, tx, delivery, now)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// markDelivered moves a shipped deal to delivered. Deals that already left
// shipped (refund requested, completed) keep their status.
func (s *service) markDelivered(ctx context.Context, tx *gorm.DB, delivery *models.Delivery, now time.Time) error {
	dealRepo := s.deals.WithTx(tx)
	deal, err := dealRepo.FindForUpdate(ctx, delivery.DealID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	if deal.Status != enums.DealStatusShipped {
		return nil
	}
	if err := deals.Transition(ctx, dealRepo, deal, enums.DealStatusDelivered, nil); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDealDelivered,
		AggregateType: enums.AggregateDelivery,
		AggregateID:   delivery.ID,
		OccurredAt:    now,
		Data: payloads.DealStatusEvent{
			DealID:    deal.ID,
			PaymentID: deal.PaymentID,
			BuyerID:   deal.BuyerID,
			SellerID:  deal.SellerID,
			Status:    deal.Status,
			Source:    "carrier",
			At:        now,
		},
	})
}
