package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/cart"
	"github.com/angelmondragon/dealflow-backend/internal/checkout"
	"github.com/angelmondragon/dealflow-backend/internal/commission"
	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/internal/deliveries"
	"github.com/angelmondragon/dealflow-backend/internal/deliveryfee"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/internal/payments"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/internal/reviews"
	"github.com/angelmondragon/dealflow-backend/internal/settlement"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
)

// Database is the shared connection every repository and transaction uses.
// *db.Client satisfies it.
type Database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Locker guards one buyer's checkout. *redis.Client satisfies it.
type Locker interface {
	LockKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// Params feed BuildServices.
type Params struct {
	Config  *config.Config
	DB      Database
	Locker  Locker
	Gateway payments.Gateway
	Metrics *metrics.MoneyFlowMetrics
	Logger  *logger.Logger
}

// Services is the money-flow service graph shared by the API and cron binaries.
type Services struct {
	Outbox        *outbox.Service
	OutboxRepo    *outbox.Repository
	Notifier      *notifications.Dispatcher
	Notifications notifications.Service
	NotifyRepo    *notifications.Repository
	Products      product.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Payments      payments.Service
	Deals         deals.Service
	Deliveries    deliveries.Service
	Reviews       reviews.Service
	Settlement    settlement.Service
}

// BuildServices wires repositories and services in dependency order.
func BuildServices(p Params) (*Services, error) {
	switch {
	case p.Config == nil:
		return nil, fmt.Errorf("config required")
	case p.DB == nil:
		return nil, fmt.Errorf("database required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	cfg, conn := p.Config, p.DB.DB()

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, p.Logger)
	notifier, err := notifications.NewDispatcher(outboxSvc, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}
	notifyRepo := notifications.NewRepository(conn)
	notificationSvc, err := notifications.NewService(notifyRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	dealRepo := deals.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	tradeRepo := cart.NewRepository(conn)
	productSvc, err := product.NewService(productRepo)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}

	dealSvc, err := deals.NewService(dealRepo, p.DB, outboxSvc, notifier, cfg.Settlement.AutoCompleteAfter())
	if err != nil {
		return nil, fmt.Errorf("deals service: %w", err)
	}
	settlementSvc, err := settlement.NewService(settlement.NewRepository(conn), dealRepo, p.DB, outboxSvc, notifier, p.Metrics, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.Deps{
		Repo:           payments.NewRepository(conn),
		Deals:          dealRepo,
		Products:       productRepo,
		Ledger:         settlementSvc,
		Gateway:        p.Gateway,
		Tx:             p.DB,
		Outbox:         outboxSvc,
		Notifier:       notifier,
		Metrics:        p.Metrics,
		Logger:         p.Logger,
		GatewayTimeout: cfg.Settlement.GatewayTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	resolver, err := deliveryfee.NewResolver(deliveryfee.NewRepository(conn), deliveryfee.DefaultPolicy(cfg.Settlement))
	if err != nil {
		return nil, fmt.Errorf("shipping policy resolver: %w", err)
	}
	cartSvc, err := cart.NewService(tradeRepo, productRepo, resolver, paymentSvc, p.DB, cfg.Settlement.PendingCheckoutTTL)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	services := &Services{
		Outbox:        outboxSvc,
		OutboxRepo:    outboxRepo,
		Notifier:      notifier,
		Notifications: notificationSvc,
		NotifyRepo:    notifyRepo,
		Products:      productSvc,
		Cart:          cartSvc,
		Payments:      paymentSvc,
		Deals:         dealSvc,
		Settlement:    settlementSvc,
	}

	if p.Locker != nil {
		rates, err := commission.NewProvider(cfg.Settlement, conn)
		if err != nil {
			return nil, fmt.Errorf("commission provider: %w", err)
		}
		checkoutSvc, err := checkout.NewService(checkout.Deps{
			Repo:       checkout.NewRepository(conn),
			Trades:     tradeRepo,
			Products:   productRepo,
			Policies:   resolver,
			Commission: rates,
			Locker:     p.Locker,
			Tx:         p.DB,
			Outbox:     outboxSvc,
			Metrics:    p.Metrics,
			Logger:     p.Logger,
			LockTTL:    cfg.Settlement.CheckoutLockTTL,
			Releaser:   paymentSvc,
		})
		if err != nil {
			return nil, fmt.Errorf("checkout service: %w", err)
		}
		services.Checkout = checkoutSvc
	}

	services.Deliveries, err = deliveries.NewService(deliveries.NewRepository(conn), dealRepo, p.DB, outboxSvc, notifier)
	if err != nil {
		return nil, fmt.Errorf("deliveries service: %w", err)
	}
	services.Reviews, err = reviews.NewService(reviews.NewRepository(conn), dealRepo, dealSvc, p.DB)
	if err != nil {
		return nil, fmt.Errorf("reviews service: %w", err)
	}
	return services, nil
}

