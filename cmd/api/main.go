package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vendora/order-service/api/routes"
	"github.com/vendora/order-service/internal/analytics"
	"github.com/vendora/order-service/internal/catalog"
	"github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/internal/discounts"
	"github.com/vendora/order-service/internal/fulfillment"
	"github.com/vendora/order-service/internal/notifications"
	"github.com/vendora/order-service/internal/orders"
	"github.com/vendora/order-service/internal/users"
	stripewebhook "github.com/vendora/order-service/internal/webhooks/stripe"
	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/db"
	"github.com/vendora/order-service/pkg/logger"
	"github.com/vendora/order-service/pkg/mailer"
	"github.com/vendora/order-service/pkg/metrics"
	"github.com/vendora/order-service/pkg/migrate"
	"github.com/vendora/order-service/pkg/pubsub"
	"github.com/vendora/order-service/pkg/redis"
	pkgstripe "github.com/vendora/order-service/pkg/stripe"
)

// Stripe retries failed deliveries for up to three days, so processed event
// markers must outlive the retry horizon.
const webhookEventTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	intents := pkgstripe.NewPaymentIntents(stripeClient)

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	discountsRepo := discounts.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	analyticsRepo := analytics.NewRepository(dbClient.DB())

	resolver, err := discounts.NewResolver(discountsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create discount resolver", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		redisClient,
		intents,
		catalogRepo,
		resolver,
		usersRepo,
		cfg.Checkout,
		logg,
		checkoutMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	recorder, err := analytics.NewRecorder(analyticsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics recorder", err)
		os.Exit(1)
	}

	fulfillParams := fulfillment.Params{
		Sessions:  checkoutService,
		Tx:        dbClient,
		Orders:    ordersRepo,
		Catalog:   catalogRepo,
		Discounts: discountsRepo,
		Analytics: recorder,
		Users:     usersRepo,
		Notifier:  notificationsService,
		Intents:   intents,
		Config:    cfg.Checkout,
		Logger:    logg,
		Metrics:   checkoutMetrics,
	}

	if cfg.Sendgrid.APIKey != "" {
		mailClient, err := mailer.New(context.Background(), cfg.Sendgrid, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap mailer", err)
			os.Exit(1)
		}
		fulfillParams.Mailer = mailClient
	} else {
		logg.Warn(context.Background(), "sendgrid api key not set, order emails disabled")
	}

	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher, err := analytics.NewPublisher(pubsubClient.AnalyticsPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create purchase publisher", err)
			os.Exit(1)
		}
		fulfillParams.Publisher = publisher
	} else {
		logg.Warn(context.Background(), "gcp project not set, purchase events stay local")
	}

	fulfillmentService, err := fulfillment.NewService(fulfillParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Fulfillment:    fulfillmentService,
		Logger:         logg,
		HandlerTimeout: cfg.Stripe.WebhookTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookEventTTL, "stripe_event")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Checkout:      checkoutService,
			Fulfillment:   fulfillmentService,
			Orders:        ordersService,
			Notifications: notificationsService,
			Stripe:        stripeClient,
			Webhook:       webhookService,
			WebhookGuard:  webhookGuard,
			Metrics:       registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
