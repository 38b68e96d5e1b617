package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dealflow-backend/api/controllers"
	"github.com/angelmondragon/dealflow-backend/api/middleware"
	"github.com/angelmondragon/dealflow-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/dealflow-backend/internal/checkout"
	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/internal/deliveries"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/internal/payments"
	product "github.com/angelmondragon/dealflow-backend/internal/products"
	"github.com/angelmondragon/dealflow-backend/internal/reviews"
	"github.com/angelmondragon/dealflow-backend/internal/settlement"
	"github.com/angelmondragon/dealflow-backend/pkg/auth/session"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dealflow-backend/pkg/redis"
)

// KeyStore backs request idempotency and rate limiting. *redis.Client satisfies it.
type KeyStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, caller string) string
}

// RouterParams carries every dependency mounted on the HTTP surface.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Health   map[string]controllers.Pinger
	Sessions session.AccessSessionChecker
	Store    KeyStore

	Products      product.Service
	Cart          cart.Service
	Checkout      checkoutsvc.Service
	Payments      payments.Service
	Deals         deals.Service
	Deliveries    deliveries.Service
	Reviews       reviews.Service
	Settlement    settlement.Service
	Notifications notifications.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)
	capturePolicy := middleware.NewRateLimitPolicy("capture", cfg.RateLimit.Window, cfg.RateLimit.CaptureLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Health))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Get("/products/{productId}", controllers.ProductDetail(p.Products, logg))
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartList(p.Cart, logg))
			r.Post("/", controllers.CartAdd(p.Cart, logg))
			r.Delete("/", controllers.CartRemove(p.Cart, logg))
		})
		r.With(middleware.RateLimit(checkoutPolicy, p.Store, logg)).
			Post("/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/payments/{paymentId}", func(r chi.Router) {
			r.Get("/", controllers.PaymentDetail(p.Payments, logg))
			r.Post("/receipt", controllers.PaymentAttachReceipt(p.Payments, logg))
			r.With(middleware.RateLimit(capturePolicy, p.Store, logg)).
				Post("/capture", controllers.PaymentCapture(p.Payments, logg))
		})

		r.Route("/deals", func(r chi.Router) {
			r.Get("/", controllers.DealList(p.Deals, logg))
			r.Route("/{dealId}", func(r chi.Router) {
				r.Get("/", controllers.DealDetail(p.Deals, logg))
				r.Post("/review", controllers.DealReview(p.Reviews, logg))
				r.Post("/refund-request", controllers.DealRefundRequest(p.Deals, logg))
				r.Post("/refund-decision", controllers.DealRefundDecision(p.Payments, logg))
			})
		})

		r.Post("/deliveries/{deliveryId}/waybill", controllers.DeliveryWaybill(p.Deliveries, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Post("/deliveries/{deliveryId}/tracking", controllers.AdminDeliveryTracking(p.Deliveries, logg))
		r.Route("/wallet-logs", func(r chi.Router) {
			r.Get("/", controllers.AdminWalletLogs(p.Settlement, logg))
			r.Post("/{walletLogId}/settle", controllers.AdminSettleWalletLog(p.Settlement, logg))
		})
		r.Post("/deals/{dealId}/complete", controllers.AdminCompleteDeal(p.Deals, logg))
	})

	return r
}
