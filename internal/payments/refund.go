package payments

import (
	"context"
	"slices"
	"strings"

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

const (
	maxRejectReasonLength = 500

	refundResultApproved     = "approved"
	refundResultRejected     = "rejected"
	refundResultCancelFailed = "cancel_failed"
)

// ApproveRefund returns a deal's total to the buyer. The deal and payment are
// parked in REFUND_APPROVED / REFUND_IN_PROGRESS while the gateway is called,
// so a second approval cannot start a second refund. Products stay sold.
func (s *service) ApproveRefund(ctx context.Context, sellerID, dealID uuid.UUID) (*deals.DealView, error) {
	var (
		deal    *models.Deal
		payment *models.Payment
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.sellerDeal(ctx, tx, sellerID, dealID)
		if err != nil {
			return err
		}
		owner, err := s.repo.WithTx(tx).FindForUpdate(ctx, found.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if owner.ReceiptID == nil {
			return pkgerrors.New(pkgerrors.CodeInvariant, "paid deal has no receipt")
		}
		if err := deals.Transition(ctx, s.deals.WithTx(tx), found, enums.DealStatusRefundApproved, nil); err != nil {
			return err
		}
		if err := s.move(ctx, s.repo.WithTx(tx), owner, enums.PaymentStatusRefundInProgress, nil); err != nil {
			return err
		}
		deal, payment = found, owner
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithDealID(s.logg.WithPaymentID(ctx, payment.ID.String()), deal.ID.String())
	reason := "refund approved by seller"
	if deal.RefundReason != nil {
		reason = *deal.RefundReason
	}
	cancelCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	result, err := s.gateway.Cancel(cancelCtx, CancelRequest{
		ReceiptID: *payment.ReceiptID,
		Amount:    deal.Total,
		Reason:    reason,
		Partial:   deal.Total < payment.Remaining(),
		Key:       "deal-refund-" + deal.ID.String(),
	})
	cancel()
	if err != nil {
		s.metrics.IncRefund(refundResultCancelFailed)
		amount := deal.Total
		s.fail(logCtx, payment, enums.PaymentStatusCancelFailed, failure{
			stage:   enums.PaymentErrorStageRefund,
			message: err.Error(),
			actual:  &amount,
		})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund deal at gateway")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		refunded := *deal
		refunded.Trades = slices.Clone(deal.Trades)
		owner := *payment
		if err := deals.Transition(ctx, s.deals.WithTx(tx), &refunded, enums.DealStatusRefunded, nil); err != nil {
			return err
		}
		if err := s.ledger.MarkRefunded(ctx, tx, deal.ID); err != nil {
			return err
		}

		canceled := owner.CanceledAmount + deal.Total
		next := enums.PaymentStatusPaid
		extra := map[string]any{"canceled_amount": canceled, "gateway_raw": result.Raw}
		if canceled >= owner.Price {
			next = enums.PaymentStatusCanceled
			extra["canceled_at"] = now
			extra["cancel_reason"] = reason
		}
		if err := s.move(ctx, s.repo.WithTx(tx), &owner, next, extra); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealRefunded,
			AggregateType: enums.AggregateDeal,
			AggregateID:   deal.ID,
			Actor:         &outbox.ActorRef{UserID: sellerID, Role: string(enums.RoleUser)},
			Data: payloads.DealRefundedEvent{
				DealID:     deal.ID,
				PaymentID:  payment.ID,
				BuyerID:    deal.BuyerID,
				SellerID:   deal.SellerID,
				Amount:     deal.Total,
				RefundedAt: now,
			},
		}); err != nil {
			return err
		}
		s.notifier.Notify(ctx, tx, notifications.RefundResolved{
			BuyerID:  deal.BuyerID,
			DealID:   deal.ID,
			Approved: true,
			Amount:   deal.Total,
		})
		return nil
	})
	if err != nil {
		s.logg.Error(logCtx, "refund commit failed after gateway refund", err)
		amount := deal.Total
		s.fail(logCtx, payment, enums.PaymentStatusCancelFailed, failure{
			stage:   enums.PaymentErrorStageCommit,
			message: "gateway refunded but the refund was not recorded: " + err.Error(),
			actual:  &amount,
			detail:  result.Raw,
		})
		return nil, err
	}
	s.metrics.IncRefund(refundResultApproved)
	s.logg.Info(logCtx, "deal refunded")
	return s.dealView(ctx, deal.ID)
}

// RejectRefund declines the buyer's refund request. The deal then continues
// to completion through a review or the auto-complete timer.
func (s *service) RejectRefund(ctx context.Context, sellerID, dealID uuid.UUID, reason string) (*deals.DealView, error) {
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) > maxRejectReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason too long")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deal, err := s.sellerDeal(ctx, tx, sellerID, dealID)
		if err != nil {
			return err
		}
		if err := deals.Transition(ctx, s.deals.WithTx(tx), deal, enums.DealStatusRefundRejected, nil); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealRefundRejected,
			AggregateType: enums.AggregateDeal,
			AggregateID:   deal.ID,
			Actor:         &outbox.ActorRef{UserID: sellerID, Role: string(enums.RoleUser)},
			Data: payloads.DealStatusEvent{
				DealID:    deal.ID,
				PaymentID: deal.PaymentID,
				BuyerID:   deal.BuyerID,
				SellerID:  deal.SellerID,
				Status:    deal.Status,
				Reason:    reason,
				At:        s.now(),
			},
		}); err != nil {
			return err
		}
		s.notifier.Notify(ctx, tx, notifications.RefundResolved{
			BuyerID: deal.BuyerID,
			DealID:  deal.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRefund(refundResultRejected)
	return s.dealView(ctx, dealID)
}

func (s *service) sellerDeal(ctx context.Context, tx *gorm.DB, sellerID, dealID uuid.UUID) (*models.Deal, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	deal, err := s.deals.WithTx(tx).FindForUpdate(ctx, dealID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	if deal.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can decide a refund")
	}
	if deal.Status != enums.DealStatusRefundRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deal has no open refund request").
			WithDetails(map[string]any{"deal_id": deal.ID, "status": deal.Status})
	}
	return deal, nil
}

func (s *service) dealView(ctx context.Context, dealID uuid.UUID) (*deals.DealView, error) {
	deal, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload deal")
	}
	view := deals.NewDealView(*deal)
	return &view, nil
}
