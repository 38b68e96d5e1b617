package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deliveryfee"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
)

const (
	staleCheckoutReason   = "product sold before payment"
	expiredCheckoutReason = "checkout expired without payment"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type policyResolver interface {
	Policies(ctx context.Context, tx *gorm.DB, sellerIDs []uuid.UUID) (func(uuid.UUID) deliveryfee.Policy, error)
}

// CheckoutPurger tears down a checkout whose payment never received a receipt.
// Purge deletes its trades; Release returns them to the cart.
type CheckoutPurger interface {
	PurgePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error
	ReleasePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error
}

// Service is the buyer's cart of pending trades.
type Service interface {
	AddToCart(ctx context.Context, buyerID, productID uuid.UUID) (*models.Trade, bool, error)
	Reconcile(ctx context.Context, buyerID uuid.UUID) (*ReconcileResult, error)
	ReconcileAll(ctx context.Context, limit int) (*ReconcileResult, error)
	List(ctx context.Context, buyerID uuid.UUID, isRemoteArea bool) (*View, error)
	Remove(ctx context.Context, buyerID uuid.UUID, tradeIDs []uuid.UUID) (int64, error)
}

// ReconcileResult reports what a cleanup pass removed.
type ReconcileResult struct {
	DeletedTrades     int64 `json:"deleted_trades"`
	PurgedCheckouts   int   `json:"purged_checkouts"`
	ReleasedCheckouts int   `json:"released_checkouts"`
	FailedCheckouts   int   `json:"failed_checkouts,omitempty"`
}

type service struct {
	repo        Repository
	products    product.Repository
	policies    policyResolver
	purger      CheckoutPurger
	tx          txRunner
	checkoutTTL time.Duration
	now         func() time.Time
}

// NewService wires the cart. purger may be nil, in which case stale checkouts
// are left for the payment flow to cancel. Checkouts left without a receipt
// for longer than checkoutTTL are released back to the cart; zero disables it.
func NewService(repo Repository, products product.Repository, policies policyResolver, purger CheckoutPurger, tx txRunner, checkoutTTL time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("trade repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if policies == nil {
		return nil, fmt.Errorf("shipping policy resolver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		products:    products,
		policies:    policies,
		purger:      purger,
		tx:          tx,
		checkoutTTL: checkoutTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// AddToCart returns the buyer's trade for the product, creating it when absent.
// created is false when the trade already existed.
func (s *service) AddToCart(ctx context.Context, buyerID, productID uuid.UUID) (*models.Trade, bool, error) {
	if buyerID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if productID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	item, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if item.SellerID == buyerID {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own listing")
	}
	if item.Sold {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "product already sold")
	}

	existing, err := s.existing(ctx, item, buyerID)
	if err != nil || existing != nil {
		return existing, false, err
	}

	trade := &models.Trade{
		ProductID: item.ID,
		SellerID:  item.SellerID,
		BuyerID:   buyerID,
		Status:    enums.TradeStatusPendingPayment,
	}
	if err := s.repo.Create(ctx, trade); err != nil {
		if db.IsUniqueViolation(err, uniqueTradeKey) {
			existing, err := s.existing(ctx, item, buyerID)
			if err != nil {
				return nil, false, err
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trade")
	}
	return trade, true, nil
}

func (s *service) existing(ctx context.Context, item *models.Product, buyerID uuid.UUID) (*models.Trade, error) {
	trade, err := s.repo.FindByKey(ctx, item.ID, item.SellerID, buyerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trade")
	}
	if trade.Status != enums.TradeStatusPendingPayment && trade.Status != enums.TradeStatusPaymentConfirming {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already traded by buyer").
			WithDetails(map[string]any{"trade_id": trade.ID, "status": trade.Status})
	}
	return trade, nil
}

func (s *service) Reconcile(ctx context.Context, buyerID uuid.UUID) (*ReconcileResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	result, err := s.reconcile(ctx, &buyerID, 0)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReconcileAll sweeps every buyer's cart.
func (s *service) ReconcileAll(ctx context.Context, limit int) (*ReconcileResult, error) {
	return s.reconcile(ctx, nil, limit)
}

func (s *service) reconcile(ctx context.Context, buyerID *uuid.UUID, limit int) (*ReconcileResult, error) {
	deleted, err := s.repo.DeleteSoldPending(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete sold cart trades")
	}
	result := &ReconcileResult{DeletedTrades: deleted}
	if s.purger == nil {
		return result, nil
	}

	stale, err := s.repo.FindStaleCheckouts(ctx, buyerID, limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale checkouts")
	}
	errs := s.teardown(ctx, stale, s.purger.PurgePendingCheckout, staleCheckoutReason, &result.PurgedCheckouts, result)
	if s.checkoutTTL <= 0 {
		return result, errs
	}

	expired, err := s.repo.FindExpiredCheckouts(ctx, buyerID, s.now().Add(-s.checkoutTTL), limit)
	if err != nil {
		return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired checkouts"))
	}
	errs = multierr.Append(errs, s.teardown(ctx, expired, s.purger.ReleasePendingCheckout, expiredCheckoutReason, &result.ReleasedCheckouts, result))
	return result, errs
}

type teardownFunc func(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error

// teardown runs fn for each payment in its own transaction and counts the
// outcome. Failures are collected so one bad payment does not block the rest.
func (s *service) teardown(ctx context.Context, paymentIDs []uuid.UUID, fn teardownFunc, reason string, done *int, result *ReconcileResult) error {
	var errs error
	for _, paymentID := range paymentIDs {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(ctx, tx, paymentID, reason)
		})
		if err != nil {
			result.FailedCheckouts++
			errs = multierr.Append(errs, fmt.Errorf("tear down payment %s: %w", paymentID, err))
			continue
		}
		*done++
	}
	return errs
}

func (s *service) List(ctx context.Context, buyerID uuid.UUID, isRemoteArea bool) (*View, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	trades, err := s.repo.ListPending(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	productIDs := make([]uuid.UUID, 0, len(trades))
	for _, trade := range trades {
		productIDs = append(productIDs, trade.ProductID)
	}
	items, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}
	byID := make(map[uuid.UUID]models.Product, len(items))
	sellerIDs := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool)
	for _, item := range items {
		byID[item.ID] = item
		if !seen[item.SellerID] {
			seen[item.SellerID] = true
			sellerIDs = append(sellerIDs, item.SellerID)
		}
	}
	policyFor, err := s.policies.Policies(ctx, nil, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping policies")
	}
	return buildView(trades, byID, policyFor, isRemoteArea), nil
}

// Remove deletes the listed pending trades. Either every id is removable and
// all are deleted, or nothing changes.
func (s *service) Remove(ctx context.Context, buyerID uuid.UUID, tradeIDs []uuid.UUID) (int64, error) {
	if buyerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ids := dedupe(tradeIDs)
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "trade ids required")
	}

	var removed int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		removable, err := repo.FindPendingByIDs(ctx, buyerID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trades")
		}
		if len(removable) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "some trades cannot be removed").
				WithDetails(map[string]any{"missing": missingIDs(ids, removable)})
		}
		removed, err = repo.DeletePendingByIDs(ctx, buyerID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete trades")
		}
		if removed != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "trades changed concurrently")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []uuid.UUID, found []models.Trade) []uuid.UUID {
	present := make(map[uuid.UUID]bool, len(found))
	for _, trade := range found {
		present[trade.ID] = true
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
