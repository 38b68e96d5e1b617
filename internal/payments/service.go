package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const (
	maxReceiptIDLength = 128

	reasonSoldBeforePayment = "product sold before payment"
	reasonDeclined          = "gateway declined payment"
	reasonAmountMismatch    = "gateway amount does not match payment price"
	reasonSoldRace          = "product sold to another buyer during capture"
)

var errSoldRace = errors.New("products sold concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ledger opens and closes seller payouts alongside payment state changes.
type ledger interface {
	CreatePending(ctx context.Context, tx *gorm.DB, deals []models.Deal) ([]models.WalletLog, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) error
}

// Service is the payment state machine.
type Service interface {
	Get(ctx context.Context, actor deals.Actor, paymentID uuid.UUID) (*PaymentView, error)
	AttachReceipt(ctx context.Context, buyerID, paymentID uuid.UUID, receiptID string) (*models.Payment, error)
	Capture(ctx context.Context, buyerID, paymentID uuid.UUID) (*models.Payment, error)
	ApproveRefund(ctx context.Context, sellerID, dealID uuid.UUID) (*deals.DealView, error)
	RejectRefund(ctx context.Context, sellerID, dealID uuid.UUID, reason string) (*deals.DealView, error)
	PurgePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error
	ReleasePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error
}

// Deps groups the payment state machine collaborators.
type Deps struct {
	Repo           Repository
	Deals          deals.Repository
	Products       product.Repository
	Ledger         ledger
	Gateway        Gateway
	Tx             txRunner
	Outbox         outbox.Emitter
	Notifier       notifications.Notifier
	Metrics        *metrics.MoneyFlowMetrics
	Logger         *logger.Logger
	GatewayTimeout time.Duration
}

type service struct {
	repo           Repository
	deals          deals.Repository
	products       product.Repository
	ledger         ledger
	gateway        Gateway
	tx             txRunner
	outbox         outbox.Emitter
	notifier       notifications.Notifier
	metrics        *metrics.MoneyFlowMetrics
	logg           *logger.Logger
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewService validates and wires the payment dependencies.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("payment repository required")
	case deps.Deals == nil:
		return nil, fmt.Errorf("deals repository required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Discard{}
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		repo:           deps.Repo,
		deals:          deps.Deals,
		products:       deps.Products,
		ledger:         deps.Ledger,
		gateway:        deps.Gateway,
		tx:             deps.Tx,
		outbox:         deps.Outbox,
		notifier:       notifier,
		metrics:        deps.Metrics,
		logg:           deps.Logger,
		gatewayTimeout: timeout,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, actor deals.Actor, paymentID uuid.UUID) (*PaymentView, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.BuyerID != actor.UserID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	dealRows, err := s.deals.FindByPayment(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment deals")
	}
	view := NewPaymentView(*payment, dealRows)
	return &view, nil
}

// AttachReceipt records the gateway receipt for a pending payment. If any
// product was sold in the meantime the whole checkout is torn down instead.
func (s *service) AttachReceipt(ctx context.Context, buyerID, paymentID uuid.UUID, receiptID string) (*models.Payment, error) {
	receiptID = strings.TrimSpace(receiptID)
	switch {
	case buyerID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case receiptID == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id required")
	case len(receiptID) > maxReceiptIDLength:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id too long")
	}

	var (
		updated *models.Payment
		purged  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, purged = nil, false
		repo := s.repo.WithTx(tx)
		payment, err := s.ownedForUpdate(ctx, repo, buyerID, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != enums.PaymentStatusPending {
			return stateConflict(payment, enums.PaymentStatusConfirming)
		}
		sold, err := repo.HasSoldProducts(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check sold products")
		}
		if sold {
			purged = true
			return s.purge(ctx, tx, payment, reasonSoldBeforePayment, false)
		}
		if err := s.move(ctx, repo, payment, enums.PaymentStatusConfirming, map[string]any{"receipt_id": receiptID}); err != nil {
			return err
		}
		payment.ReceiptID = &receiptID
		updated = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if purged {
		s.logg.Info(s.logg.WithPaymentID(ctx, paymentID.String()), "checkout purged at receipt attach")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a product in this checkout was sold; the checkout was canceled")
	}
	return updated, nil
}

// PurgePendingCheckout deletes the deals, deliveries and trades of a payment
// that never received a receipt and marks it canceled.
func (s *service) PurgePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error {
	payment, err := s.pendingForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	return s.purge(ctx, tx, payment, reason, false)
}

// ReleasePendingCheckout cancels an abandoned payment that never received a
// receipt. Its trades go back to the buyer's cart instead of being deleted.
func (s *service) ReleasePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error {
	payment, err := s.pendingForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	return s.purge(ctx, tx, payment, reason, true)
}

func (s *service) pendingForUpdate(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.WithTx(tx).FindForUpdate(ctx, paymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, stateConflict(payment, enums.PaymentStatusCanceled)
	}
	return payment, nil
}

func (s *service) purge(ctx context.Context, tx *gorm.DB, payment *models.Payment, reason string, keepTrades bool) error {
	dealRepo := s.deals.WithTx(tx)
	remove := dealRepo.DeleteByPayment
	if keepTrades {
		remove = dealRepo.ReleaseByPayment
	}
	if err := remove(ctx, payment.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete checkout rows")
	}
	now := s.now()
	if err := s.move(ctx, s.repo.WithTx(tx), payment, enums.PaymentStatusCanceled, map[string]any{
		"cancel_reason": reason,
		"canceled_at":   now,
	}); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCanceled,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentCanceledEvent{
			PaymentID:  payment.ID,
			BuyerID:    payment.BuyerID,
			Status:     enums.PaymentStatusCanceled,
			Reason:     reason,
			CanceledAt: now,
		},
	})
}

// Capture asks the gateway to confirm the receipt and either marks the whole
// checkout paid or returns the money and unwinds it. A payment is captured at
// most once; the CONFIRMING to APPROVING move is the guard.
func (s *service) Capture(ctx context.Context, buyerID, paymentID uuid.UUID) (*models.Payment, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := s.ownedForUpdate(ctx, repo, buyerID, paymentID)
		if err != nil {
			return err
		}
		if found.ReceiptID == nil && found.Status == enums.PaymentStatusConfirming {
			return pkgerrors.New(pkgerrors.CodeInvariant, "confirming payment has no receipt")
		}
		if err := s.move(ctx, repo, found, enums.PaymentStatusApproving, nil); err != nil {
			return err
		}
		payment = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	verifyCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	verification, err := s.gateway.Verify(verifyCtx, *payment.ReceiptID)
	cancel()
	if err != nil {
		s.metrics.IncCapture(metrics.CaptureOutcomeGatewayError)
		s.fail(logCtx, payment, enums.PaymentStatusFailedError, failure{
			stage:   enums.PaymentErrorStageVerify,
			message: err.Error(),
		})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify payment with gateway")
	}

	switch {
	case verification.Status != GatewayApproved:
		s.metrics.IncCapture(metrics.CaptureOutcomeDeclined)
		return s.unwind(logCtx, payment, verification, unwindDeclined)
	case verification.Amount != payment.Price:
		s.metrics.IncCapture(metrics.CaptureOutcomeAmountMismatch)
		return s.unwind(logCtx, payment, verification, unwindMismatch)
	}

	var paid models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paid = *payment
		return s.markPaid(ctx, tx, &paid, verification)
	})
	if errors.Is(err, errSoldRace) {
		s.metrics.IncCapture(metrics.CaptureOutcomeSoldRace)
		return s.unwind(logCtx, payment, verification, unwindSoldRace)
	}
	if err != nil {
		s.metrics.IncCapture(metrics.CaptureOutcomeCommitFailed)
		s.logg.Error(logCtx, "capture commit failed after gateway approval", err)
		s.fail(logCtx, payment, enums.PaymentStatusFailedError, failure{
			stage:   enums.PaymentErrorStageCommit,
			message: "gateway approved but capture was not recorded: " + err.Error(),
			actual:  &verification.Amount,
			detail:  verification.Raw,
		})
		return nil, err
	}
	s.metrics.IncCapture(metrics.CaptureOutcomePaid)
	s.logg.Info(logCtx, "payment captured")
	return &paid, nil
}

// markPaid sells every product of the payment with one check-and-set and moves
// the checkout to PAID. Losing the race to another buyer returns errSoldRace
// and rolls the transaction back.
func (s *service) markPaid(ctx context.Context, tx *gorm.DB, payment *models.Payment, verification *Verification) error {
	repo := s.repo.WithTx(tx)
	productIDs, err := repo.ProductIDs(ctx, payment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment products")
	}
	if len(productIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeInvariant, "payment has no products")
	}
	now := s.now()
	sold, err := s.products.WithTx(tx).MarkSold(ctx, productIDs, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark products sold")
	}
	if sold != int64(len(productIDs)) {
		return errSoldRace
	}

	dealRepo := s.deals.WithTx(tx)
	dealRows, err := dealRepo.FindByPayment(ctx, payment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment deals")
	}
	for i := range dealRows {
		if err := deals.Transition(ctx, dealRepo, &dealRows[i], enums.DealStatusPaid, nil); err != nil {
			return err
		}
	}
	if err := s.move(ctx, repo, payment, enums.PaymentStatusPaid, map[string]any{
		"paid_at":     now,
		"gateway_raw": verification.Raw,
	}); err != nil {
		return err
	}
	payment.PaidAt = &now
	payment.GatewayRaw = verification.Raw

	walletLogs, err := s.ledger.CreatePending(ctx, tx, dealRows)
	if err != nil {
		return err
	}
	logByDeal := make(map[uuid.UUID]uuid.UUID, len(walletLogs))
	for _, entry := range walletLogs {
		logByDeal[entry.DealID] = entry.ID
	}

	event := payloads.PaymentCapturedEvent{
		PaymentID: payment.ID,
		BuyerID:   payment.BuyerID,
		ReceiptID: *payment.ReceiptID,
		Amount:    payment.Price,
		PaidAt:    now,
		Deals:     make([]payloads.CapturedDeal, 0, len(dealRows)),
	}
	notices := []notifications.Notice{notifications.PaymentCompleted{
		BuyerID:   payment.BuyerID,
		PaymentID: payment.ID,
		Amount:    payment.Price,
		DealCount: len(dealRows),
	}}
	for _, deal := range dealRows {
		event.Deals = append(event.Deals, payloads.CapturedDeal{
			DealID:         deal.ID,
			SellerID:       deal.SellerID,
			WalletLogID:    logByDeal[deal.ID],
			TotalGoods:     deal.TotalGoods,
			DeliveryCharge: deal.DeliveryCharge,
			Total:          deal.Total,
			Remain:         deal.Remain,
			CommissionRate: deal.CommissionRate.String(),
		})
		notices = append(notices, notifications.ItemSold{
			SellerID:  deal.SellerID,
			DealID:    deal.ID,
			ItemCount: len(deal.Trades),
			Total:     deal.Total,
		})
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{UserID: payment.BuyerID, Role: string(enums.RoleUser)},
		Data:          event,
	}); err != nil {
		return err
	}
	s.notifier.Notify(ctx, tx, notices...)
	return nil
}

type unwindKind int

const (
	unwindDeclined unwindKind = iota
	unwindMismatch
	unwindSoldRace
)

// unwind returns the charged money at the gateway, then marks the payment
// terminal and every deal and trade REFUNDED. Products stay unsold.
func (s *service) unwind(ctx context.Context, payment *models.Payment, verification *Verification, kind unwindKind) (*models.Payment, error) {
	target, reason := enums.PaymentStatusCanceled, reasonDeclined
	switch kind {
	case unwindMismatch:
		reason = reasonAmountMismatch
	case unwindSoldRace:
		target, reason = enums.PaymentStatusFailedApproval, reasonSoldRace
	}
	amount := verification.Amount
	if amount <= 0 {
		amount = payment.Price
	}
	mismatch := func() *failure {
		if kind != unwindMismatch {
			return nil
		}
		return &failure{
			stage:    enums.PaymentErrorStageAmountMismatch,
			message:  reasonAmountMismatch,
			expected: &payment.Price,
			actual:   &verification.Amount,
			detail:   verification.Raw,
		}
	}

	cancelCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	result, err := s.gateway.Cancel(cancelCtx, CancelRequest{
		ReceiptID: *payment.ReceiptID,
		Amount:    amount,
		Reason:    reason,
		Key:       "capture-cancel-" + payment.ID.String(),
	})
	cancel()
	if err != nil {
		s.metrics.IncCapture(metrics.CaptureOutcomeCancelFailed)
		failures := []failure{{stage: enums.PaymentErrorStageCancel, message: err.Error(), actual: &amount}}
		if m := mismatch(); m != nil {
			failures = append([]failure{*m}, failures...)
		}
		s.fail(ctx, payment, enums.PaymentStatusCancelFailed, failures...)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment at gateway")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attempt := *payment
		if m := mismatch(); m != nil {
			if err := s.repo.WithTx(tx).CreateErrorLog(ctx, m.entry(&attempt)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write payment error log")
			}
		}
		if err := s.move(ctx, s.repo.WithTx(tx), &attempt, target, map[string]any{
			"canceled_amount": amount,
			"cancel_reason":   reason,
			"canceled_at":     now,
			"gateway_raw":     result.Raw,
		}); err != nil {
			return err
		}
		dealRepo := s.deals.WithTx(tx)
		dealRows, err := dealRepo.FindByPayment(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment deals")
		}
		for i := range dealRows {
			if err := deals.Transition(ctx, dealRepo, &dealRows[i], enums.DealStatusRefunded, nil); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCanceled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentCanceledEvent{
				PaymentID:      payment.ID,
				BuyerID:        payment.BuyerID,
				Status:         target,
				CanceledAmount: amount,
				Reason:         reason,
				CanceledAt:     now,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "unwind commit failed after gateway cancel", err)
		failures := []failure{{
			stage:   enums.PaymentErrorStageCommit,
			message: "gateway canceled but the unwind was not recorded: " + err.Error(),
			actual:  &amount,
			detail:  result.Raw,
		}}
		if m := mismatch(); m != nil {
			failures = append([]failure{*m}, failures...)
		}
		s.fail(ctx, payment, enums.PaymentStatusCancelFailed, failures...)
		return nil, err
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment unwound")

	switch kind {
	case unwindMismatch:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway amount does not match payment; the charge was canceled").
			WithDetails(map[string]any{"expected": payment.Price, "actual": verification.Amount})
	case unwindSoldRace:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a product was sold to another buyer; the charge was canceled")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "gateway declined the payment")
	}
}

type failure struct {
	stage    enums.PaymentErrorStage
	message  string
	expected *int64
	actual   *int64
	detail   json.RawMessage
}

func (f failure) entry(payment *models.Payment) *models.PaymentErrorLog {
	return &models.PaymentErrorLog{
		PaymentID:      payment.ID,
		Stage:          f.stage,
		ReceiptID:      payment.ReceiptID,
		Message:        f.message,
		ExpectedAmount: f.expected,
		ActualAmount:   f.actual,
		Detail:         f.detail,
	}
}

// fail parks the payment in a status that needs an operator and records why.
// It runs after a gateway problem, so its own errors are logged, not returned.
func (s *service) fail(ctx context.Context, payment *models.Payment, status enums.PaymentStatus, failures ...failure) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attempt := *payment
		repo := s.repo.WithTx(tx)
		for _, f := range failures {
			if err := repo.CreateErrorLog(ctx, f.entry(&attempt)); err != nil {
				return err
			}
		}
		if err := s.move(ctx, repo, &attempt, status, nil); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentFailedEvent{
				PaymentID: payment.ID,
				BuyerID:   payment.BuyerID,
				Status:    status,
				Reason:    failures[len(failures)-1].message,
			},
		})
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "target_status", status), "record payment failure", err)
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "status", status), "payment needs reconciliation")
}

func (s *service) ownedForUpdate(ctx context.Context, repo Repository, buyerID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := repo.FindForUpdate(ctx, paymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

// move applies a legal payment transition as a conditional update. It also
// sets payment.Status, so closures that WithTx may re-run must pass a copy.
func (s *service) move(ctx context.Context, repo Repository, payment *models.Payment, to enums.PaymentStatus, extra map[string]any) error {
	if !enums.CanTransitionPayment(payment.Status, to) {
		return stateConflict(payment, to)
	}
	rows, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, to, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently").
			WithDetails(map[string]any{"payment_id": payment.ID, "expected": payment.Status})
	}
	payment.Status = to
	return nil
}

func stateConflict(payment *models.Payment, to enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment cannot move from %s to %s", payment.Status, to)).
		WithDetails(map[string]any{"payment_id": payment.ID, "from": payment.Status, "to": to})
}
