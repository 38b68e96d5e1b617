package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/cart"
	"github.com/angelmondragon/dealflow-backend/internal/commission"
	"github.com/angelmondragon/dealflow-backend/internal/deliveryfee"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
)

const (
	lockScope      = "checkout"
	replacedReason = "checkout replaced by a new one"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type buyerLocker interface {
	LockKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// CheckoutReleaser returns the trades of an unpaid checkout to the buyer's cart.
type CheckoutReleaser interface {
	ReleasePendingCheckout(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error
}

type policyResolver interface {
	Policies(ctx context.Context, tx *gorm.DB, sellerIDs []uuid.UUID) (func(uuid.UUID) deliveryfee.Policy, error)
}

// Service turns a buyer's selected trades into one payment with a deal per seller.
type Service interface {
	Execute(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) (*Result, error)
}

// CheckoutInput is the buyer's checkout request. DeclaredTotal is the amount
// the client showed the buyer and must equal the computed price exactly.
type CheckoutInput struct {
	TradeIDs      []uuid.UUID
	Address       string
	ReceiverName  string
	Phone         string
	Memo          string
	IsRemoteArea  bool
	DeclaredTotal int64
}

// Result is the pending payment and the deals it covers.
type Result struct {
	Payment models.Payment `json:"payment"`
	Deals   []models.Deal  `json:"deals"`
}

// Deps groups the checkout collaborators.
type Deps struct {
	Repo       Repository
	Trades     cart.Repository
	Products   product.Repository
	Policies   policyResolver
	Commission commission.Provider
	Locker     buyerLocker
	Tx         txRunner
	Outbox     outbox.Emitter
	Metrics    *metrics.MoneyFlowMetrics
	Logger     *logger.Logger
	LockTTL    time.Duration
	// Releaser is optional. Without it, trades held by an unpaid checkout
	// cannot be checked out again until that checkout expires.
	Releaser CheckoutReleaser
}

type service struct {
	repo       Repository
	trades     cart.Repository
	products   product.Repository
	policies   policyResolver
	commission commission.Provider
	locker     buyerLocker
	tx         txRunner
	outbox     outbox.Emitter
	metrics    *metrics.MoneyFlowMetrics
	logg       *logger.Logger
	lockTTL    time.Duration
	releaser   CheckoutReleaser
}

// NewService validates and wires the checkout dependencies.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("checkout repository required")
	case deps.Trades == nil:
		return nil, fmt.Errorf("trade repository required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case deps.Policies == nil:
		return nil, fmt.Errorf("shipping policy resolver required")
	case deps.Commission == nil:
		return nil, fmt.Errorf("commission provider required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("buyer locker required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &service{
		repo:       deps.Repo,
		trades:     deps.Trades,
		products:   deps.Products,
		policies:   deps.Policies,
		commission: deps.Commission,
		locker:     deps.Locker,
		tx:         deps.Tx,
		outbox:     deps.Outbox,
		metrics:    deps.Metrics,
		logg:       deps.Logger,
		lockTTL:    ttl,
		releaser:   deps.Releaser,
	}, nil
}

func (s *service) Execute(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) (*Result, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	tradeIDs, err := validateInput(&input)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	defer release()

	rate, err := s.commission.CurrentRate(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rate")
	}

	var (
		result   *Result
		soldIDs  []uuid.UUID
		mismatch *pkgerrors.Error
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result, soldIDs, mismatch = nil, nil, nil
		if err := s.reclaim(ctx, tx, buyerID, tradeIDs); err != nil {
			return err
		}
		trades, err := s.trades.WithTx(tx).FindPendingByIDs(ctx, buyerID, tradeIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trades")
		}
		if len(trades) != len(tradeIDs) {
			return pkgerrors.New(pkgerrors.CodeValidation, "trades are not all pending in the buyer's cart").
				WithDetails(map[string]any{"requested": len(tradeIDs), "found": len(trades)})
		}

		productIDs := make([]uuid.UUID, 0, len(trades))
		for _, trade := range trades {
			productIDs = append(productIDs, trade.ProductID)
		}
		locked, err := s.products.WithTx(tx).LockForUpdate(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock products")
		}
		byID := make(map[uuid.UUID]models.Product, len(locked))
		for _, p := range locked {
			byID[p.ID] = p
		}
		for _, trade := range trades {
			if p, ok := byID[trade.ProductID]; !ok || p.Sold {
				soldIDs = append(soldIDs, trade.ID)
			}
		}
		if len(soldIDs) > 0 {
			if _, err := s.trades.WithTx(tx).DeletePendingByIDs(ctx, buyerID, soldIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove sold trades")
			}
			return nil
		}

		built, err := s.build(ctx, tx, buyerID, input, trades, byID, rate)
		if err != nil {
			return err
		}
		if built.Payment.Price != input.DeclaredTotal {
			mismatch = pkgerrors.New(pkgerrors.CodeValidation, "declared total does not match computed price").
				WithDetails(map[string]any{
					"reason":   "price_mismatch",
					"expected": built.Payment.Price,
					"declared": input.DeclaredTotal,
				})
			return mismatch
		}

		rows, err := s.trades.WithTx(tx).UpdateStatusByIDs(ctx, tradeIDs, enums.TradeStatusPendingPayment, enums.TradeStatusPaymentConfirming)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark trades confirming")
		}
		if rows != int64(len(tradeIDs)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "trades changed during checkout")
		}
		for i := range built.Deals {
			for j := range built.Deals[i].Trades {
				built.Deals[i].Trades[j].Status = enums.TradeStatusPaymentConfirming
			}
		}

		dealIDs := make([]uuid.UUID, 0, len(built.Deals))
		for _, deal := range built.Deals {
			dealIDs = append(dealIDs, deal.ID)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCreated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   built.Payment.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.RoleUser)},
			Data: payloads.CheckoutCreatedEvent{
				PaymentID: built.Payment.ID,
				BuyerID:   buyerID,
				DealIDs:   dealIDs,
				Price:     built.Payment.Price,
			},
		}); err != nil {
			return err
		}
		result = built
		return nil
	})

	logCtx := s.logg.WithUserID(ctx, buyerID.String())
	switch {
	case err != nil:
		if mismatch != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "declared_total", input.DeclaredTotal), "checkout price mismatch")
		}
		return nil, err
	case len(soldIDs) > 0:
		s.logg.Info(s.logg.WithField(logCtx, "removed_trades", len(soldIDs)), "checkout found sold products")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "some products were sold and removed from the cart").
			WithDetails(map[string]any{"removed_trade_ids": soldIDs})
	}

	s.metrics.ObserveCheckout(len(result.Deals))
	s.logg.Info(s.logg.WithPaymentID(logCtx, result.Payment.ID.String()), "checkout created")
	return result, nil
}

// build groups trades by seller and inserts the payment, deals and deliveries.
func (s *service) build(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, input CheckoutInput, trades []models.Trade, products map[uuid.UUID]models.Product, rate decimal.Decimal) (*Result, error) {
	acc := deliveryfee.NewAccumulator()
	tradesBySeller := make(map[uuid.UUID][]models.Trade)
	var sellerIDs []uuid.UUID
	for _, trade := range trades {
		p := products[trade.ProductID]
		if _, seen := tradesBySeller[p.SellerID]; !seen {
			sellerIDs = append(sellerIDs, p.SellerID)
		}
		tradesBySeller[p.SellerID] = append(tradesBySeller[p.SellerID], trade)
		acc.Add(p.SellerID, p.DiscountedPrice())
	}

	policyFor, err := s.policies.Policies(ctx, tx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping policies")
	}
	totals := acc.Finalize(policyFor, input.IsRemoteArea)

	var price int64
	for _, t := range totals {
		price += t.Total()
	}

	repo := s.repo.WithTx(tx)
	payment := models.Payment{BuyerID: buyerID, Status: enums.PaymentStatusPending, Price: price}
	if err := repo.CreatePayment(ctx, &payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	result := &Result{Payment: payment, Deals: make([]models.Deal, 0, len(totals))}
	var memo *string
	if input.Memo != "" {
		memo = &input.Memo
	}
	for _, t := range totals {
		deal := models.Deal{
			PaymentID:      payment.ID,
			BuyerID:        buyerID,
			SellerID:       t.SellerID,
			Status:         enums.DealStatusPaymentConfirming,
			TotalGoods:     t.TotalGoods,
			DeliveryCharge: t.Charge,
			Total:          t.Total(),
			Remain:         commission.Remain(t.TotalGoods, t.Charge, rate),
			CommissionRate: rate,
		}
		if err := repo.CreateDeal(ctx, &deal); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create deal")
		}
		delivery := models.Delivery{
			DealID:       deal.ID,
			SenderID:     t.SellerID,
			ReceiverName: input.ReceiverName,
			Phone:        input.Phone,
			Address:      input.Address,
			Memo:         memo,
			IsRemoteArea: input.IsRemoteArea,
			State:        enums.DeliveryStep0,
		}
		if err := repo.CreateDelivery(ctx, &delivery); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}

		sellerTrades := tradesBySeller[t.SellerID]
		ids := make([]uuid.UUID, 0, len(sellerTrades))
		for i := range sellerTrades {
			ids = append(ids, sellerTrades[i].ID)
			dealID := deal.ID
			sellerTrades[i].DealID = &dealID
		}
		if err := s.trades.WithTx(tx).AssignDeal(ctx, ids, deal.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign trades to deal")
		}
		deal.Trades = sellerTrades
		deal.Delivery = &delivery
		result.Deals = append(result.Deals, deal)
	}
	return result, nil
}

// reclaim releases the buyer's own unpaid checkouts that still hold any of
// tradeIDs, so an abandoned payment window does not strand them.
func (s *service) reclaim(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, tradeIDs []uuid.UUID) error {
	if s.releaser == nil {
		return nil
	}
	paymentIDs, err := s.trades.WithTx(tx).FindReservingCheckouts(ctx, buyerID, tradeIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find reserving checkouts")
	}
	for _, paymentID := range paymentIDs {
		if err := s.releaser.ReleasePendingCheckout(ctx, tx, paymentID, replacedReason); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithPaymentID(s.logg.WithUserID(ctx, buyerID.String()), paymentID.String()), "released unpaid checkout")
	}
	return nil
}

// acquire takes the per-buyer checkout lock. The returned func releases it
// only if this call still owns it.
func (s *service) acquire(ctx context.Context, buyerID uuid.UUID) (func(), error) {
	key := s.locker.LockKey(lockScope, buyerID.String())
	owner := uuid.NewString()
	ok, err := s.locker.SetNX(ctx, key, owner, s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire checkout lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout already in progress for buyer")
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := s.locker.ReleaseIfOwner(releaseCtx, key, owner); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "lock_key", key), "release checkout lock", err)
		}
	}, nil
}

func validateInput(input *CheckoutInput) ([]uuid.UUID, error) {
	input.Address = strings.TrimSpace(input.Address)
	input.ReceiverName = strings.TrimSpace(input.ReceiverName)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Memo = strings.TrimSpace(input.Memo)

	seen := make(map[uuid.UUID]bool, len(input.TradeIDs))
	ids := make([]uuid.UUID, 0, len(input.TradeIDs))
	for _, id := range input.TradeIDs {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "trade id must not be empty")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	switch {
	case len(ids) == 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one trade required")
	case input.Address == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	case input.ReceiverName == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver name required")
	case input.Phone == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver phone required")
	case input.DeclaredTotal <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "declared total must be positive")
	}
	return ids, nil
}
