package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmedina-dev/hauldash-backend/api/routes"
	"github.com/rmedina-dev/hauldash-backend/internal/bookings"
	"github.com/rmedina-dev/hauldash-backend/internal/eligibility"
	"github.com/rmedina-dev/hauldash-backend/internal/escrow"
	"github.com/rmedina-dev/hauldash-backend/internal/pricing"
	stripewebhook "github.com/rmedina-dev/hauldash-backend/internal/webhooks/stripe"
	"github.com/rmedina-dev/hauldash-backend/pkg/auth/session"
	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/db"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/metrics"
	"github.com/rmedina-dev/hauldash-backend/pkg/migrate"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox"
	"github.com/rmedina-dev/hauldash-backend/pkg/redis"
	"github.com/rmedina-dev/hauldash-backend/pkg/stripe"
)

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	gateway, err := stripe.NewGateway(stripeClient, cfg.Gateway, logg, metrics.NewGatewayMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	escrowService, err := escrow.NewService(escrow.NewRepository(dbClient.DB()), gateway, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	validator, err := eligibility.NewValidatorFromConfig(cfg.ServiceArea, cfg.Booking)
	if err != nil {
		logg.Error(context.Background(), "failed to create eligibility validator", err)
		os.Exit(1)
	}
	engine, err := pricing.NewEngine(pricing.DefaultConfig())
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing engine", err)
		os.Exit(1)
	}

	bookingRepo := bookings.NewRepository(dbClient.DB())
	bookingService, err := bookings.NewService(bookingRepo, dbClient, outboxService, escrowService, validator, engine, cfg.Booking)
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BookingRepo:       bookingRepo,
		PaymentRepo:       escrow.NewRepository(dbClient.DB()),
		LedgerRepo:        stripewebhook.NewLedgerRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Metrics:           metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookGuardTTL, "stripe")
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			bookingService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
