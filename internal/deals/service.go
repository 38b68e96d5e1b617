package deals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dealflow-backend/pkg/pagination"
)

const maxRefundReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor identifies the authenticated caller of a deal operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsAdmin reports whether the actor carries the platform admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Ref converts the actor into the outbox envelope reference.
func (a *Actor) Ref() *outbox.ActorRef {
	if a == nil || a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Service exposes deal reads, completion and the buyer refund request.
type Service interface {
	Get(ctx context.Context, actor Actor, dealID uuid.UUID) (*DealView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Complete(ctx context.Context, dealID uuid.UUID, source CompletionSource, actor *Actor) error
	CompleteTx(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, source CompletionSource, actor *Actor) error
	RequestRefund(ctx context.Context, buyerID, dealID uuid.UUID, reason string) error
	DueForAutoComplete(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ListParams selects one side of the caller's deals.
type ListParams struct {
	UserID uuid.UUID
	As     Perspective
	Limit  int
	Cursor string
}

// ListResult is a page of deals.
type ListResult struct {
	Items  []DealView `json:"items"`
	Cursor string     `json:"cursor"`
}

type service struct {
	repo              Repository
	tx                txRunner
	outbox            outbox.Emitter
	notifier          notifications.Notifier
	autoCompleteAfter time.Duration
	now               func() time.Time
}

// NewService wires the deal service.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, notifier notifications.Notifier, autoCompleteAfter time.Duration) (Service, error) {
	if repo == nil {
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
	if autoCompleteAfter <= 0 {
		return nil, fmt.Errorf("auto-complete delay must be positive")
	}
	return &service{
		repo:              repo,
		tx:                tx,
		outbox:            emitter,
		notifier:          notifier,
		autoCompleteAfter: autoCompleteAfter,
		now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, dealID uuid.UUID) (*DealView, error) {
	if dealID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deal id required")
	}
	deal, err := s.repo.FindByID(ctx, dealID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	if !actor.IsAdmin() && deal.BuyerID != actor.UserID && deal.SellerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
	}
	view := NewDealView(*deal)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	query := listParams{UserID: params.UserID, As: params.As, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.Parse(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deals")
	}
	result := &ListResult{Items: make([]DealView, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, NewDealView(row))
	}
	if next != nil {
		result.Cursor = pagination.Encode(*next)
	}
	return result, nil
}

func (s *service) Complete(ctx context.Context, dealID uuid.UUID, source CompletionSource, actor *Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.CompleteTx(ctx, tx, dealID, source, actor)
	})
}

// CompleteTx finalizes a deal inside the caller's transaction. Deals that are
// already complete or settled are left untouched so repeated triggers are
// harmless.
func (s *service) CompleteTx(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, source CompletionSource, actor *Actor) error {
	if dealID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "deal id required")
	}
	repo := s.repo.WithTx(tx)
	deal, err := repo.FindForUpdate(ctx, dealID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	if deal.Status == enums.DealStatusComplete || deal.Status == enums.DealStatusSettled {
		return nil
	}

	now := s.now()
	if err := Transition(ctx, repo, deal, enums.DealStatusComplete, map[string]any{"transaction_completed_date": now}); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDealCompleted,
		AggregateType: enums.AggregateDeal,
		AggregateID:   deal.ID,
		Actor:         actor.Ref(),
		OccurredAt:    now,
		Data: payloads.DealStatusEvent{
			DealID:    deal.ID,
			PaymentID: deal.PaymentID,
			BuyerID:   deal.BuyerID,
			SellerID:  deal.SellerID,
			Status:    deal.Status,
			Source:    string(source),
			At:        now,
		},
	})
}

func (s *service) RequestRefund(ctx context.Context, buyerID, dealID uuid.UUID, reason string) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if dealID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "deal id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}
	if len(reason) > maxRefundReasonLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund reason too long")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		deal, err := repo.FindForUpdate(ctx, dealID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		if deal.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "deal does not belong to buyer")
		}

		if err := Transition(ctx, repo, deal, enums.DealStatusRefundRequested, map[string]any{"refund_reason": reason}); err != nil {
			return err
		}

		now := s.now()
		actor := &Actor{UserID: buyerID, Role: enums.RoleUser}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealRefundRequested,
			AggregateType: enums.AggregateDeal,
			AggregateID:   deal.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.DealStatusEvent{
				DealID:    deal.ID,
				PaymentID: deal.PaymentID,
				BuyerID:   deal.BuyerID,
				SellerID:  deal.SellerID,
				Status:    deal.Status,
				Reason:    reason,
				At:        now,
			},
		}); err != nil {
			return err
		}
		s.notifier.Notify(ctx, tx, notifications.RefundRequested{SellerID: deal.SellerID, DealID: deal.ID, Reason: reason})
		return nil
	})
}

// DueForAutoComplete lists deals whose waybill is older than the grace period.
func (s *service) DueForAutoComplete(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.FindAutoCompletable(ctx, now.Add(-s.autoCompleteAfter), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find auto-completable deals")
	}
	return ids, nil
}
