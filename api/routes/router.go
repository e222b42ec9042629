package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendora/order-service/api/controllers"
	webhookcontrollers "github.com/vendora/order-service/api/controllers/webhooks"
	"github.com/vendora/order-service/api/middleware"
	checkoutsvc "github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/internal/fulfillment"
	"github.com/vendora/order-service/internal/notifications"
	"github.com/vendora/order-service/internal/orders"
	stripewebhook "github.com/vendora/order-service/internal/webhooks/stripe"
	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/logger"
	"github.com/vendora/order-service/pkg/redis"
	pkgstripe "github.com/vendora/order-service/pkg/stripe"
)

// Deps collects everything the HTTP surface needs. Optional fields (metrics
// registry) may be nil.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         *redis.Client
	Checkout      checkoutsvc.Service
	Fulfillment   fulfillment.Service
	Orders        orders.Service
	Notifications notifications.Service
	Stripe        *pkgstripe.Client
	Webhook       *stripewebhook.Service
	WebhookGuard  *stripewebhook.IdempotencyGuard
	Metrics       *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var cache controllers.Pinger
	if deps.Redis != nil {
		cache = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, cache, logg))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/create-order", webhookcontrollers.StripeWebhook(deps.Webhook, deps.Stripe, deps.WebhookGuard, logg))
	})

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitMax,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/checkout", func(r chi.Router) {
			if deps.Redis != nil {
				r.Use(middleware.RateLimit(checkoutPolicy, deps.Redis, logg))
			}
			r.Post("/create-payment-session", controllers.CreatePaymentSession(deps.Checkout, logg))
			r.Get("/verify-payment-session", controllers.VerifyPaymentSession(deps.Checkout, logg))
			r.Post("/create-payment-intent", controllers.CreatePaymentIntent(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/verify-and-process-payment", controllers.VerifyAndProcessPayment(deps.Fulfillment, logg))
			r.Get("/get-my-orders", controllers.GetMyOrders(deps.Orders, logg))
			r.With(middleware.RequireRole(enums.UserRoleSeller, logg)).
				Get("/get-seller-orders", controllers.GetSellerOrders(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
