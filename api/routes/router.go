package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rmedina-dev/hauldash-backend/api/controllers"
	bookingcontrollers "github.com/rmedina-dev/hauldash-backend/api/controllers/bookings"
	webhookcontrollers "github.com/rmedina-dev/hauldash-backend/api/controllers/webhooks"
	"github.com/rmedina-dev/hauldash-backend/api/middleware"
	internalbookings "github.com/rmedina-dev/hauldash-backend/internal/bookings"
	stripewebhook "github.com/rmedina-dev/hauldash-backend/internal/webhooks/stripe"
	"github.com/rmedina-dev/hauldash-backend/pkg/auth/session"
	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/db"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/redis"
	"github.com/rmedina-dev/hauldash-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionChecker session.AccessSessionChecker,
	bookingService internalbookings.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	mutationPolicy := middleware.NewRateLimitPolicy(
		"mutation",
		cfg.RateLimit.Window,
		cfg.RateLimit.MutationIPLimit,
		cfg.RateLimit.MutationActorLimit,
	)
	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.RateLimit.Window,
		cfg.RateLimit.WebhookIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, redisClient, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.RateLimit(mutationPolicy, redisClient, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/", bookingcontrollers.List(bookingService, logg))
		r.Post("/", bookingcontrollers.Create(bookingService, logg))
		r.Get("/{bookingId}", bookingcontrollers.Detail(bookingService, logg))
		r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
			Post("/{bookingId}/transition", bookingcontrollers.Transition(bookingService, logg))
		r.Post("/{bookingId}/accept", bookingcontrollers.Accept(bookingService, logg))
		r.Post("/{bookingId}/start", bookingcontrollers.Start(bookingService, logg))
		r.Post("/{bookingId}/complete", bookingcontrollers.Complete(bookingService, logg))
		r.Post("/{bookingId}/cancel", bookingcontrollers.Cancel(bookingService, logg))
	})

	r.Route("/api/v1/private", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Get("/ping", controllers.PrivatePing())
	})

	return r
}
