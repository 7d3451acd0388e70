package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptability/Website-sub002/api/controllers"
	billingcontrollers "github.com/promptability/Website-sub002/api/controllers/billing"
	webhookcontrollers "github.com/promptability/Website-sub002/api/controllers/webhooks"
	"github.com/promptability/Website-sub002/api/middleware"
	"github.com/promptability/Website-sub002/internal/billing"
	checkoutsvc "github.com/promptability/Website-sub002/internal/checkout"
	"github.com/promptability/Website-sub002/internal/entitlements"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/usage"
	stripewebhook "github.com/promptability/Website-sub002/internal/webhooks/stripe"
	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/redis"
	"github.com/promptability/Website-sub002/pkg/stripe"
)

// RouterParams carries everything the HTTP surface is built from.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          *redis.Client
	Catalog        *plans.Catalog
	Ledger         *usage.Ledger
	Gate           *entitlements.Gate
	Billing        billing.Repository
	Checkout       checkoutsvc.Service
	WebhookService *stripewebhook.Service
	Stripe         *stripe.Client
	MetricsHandler http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": p.DB}
	if p.Redis != nil {
		readiness["redis"] = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if p.MetricsHandler != nil {
		r.Handle("/metrics", p.MetricsHandler)
	}

	r.Post("/webhooks/billing", webhookcontrollers.BillingWebhook(p.WebhookService, p.Stripe, logg))

	metered := controllers.MeteredDeps{
		Gate:    p.Gate,
		Usage:   p.Ledger,
		Catalog: p.Catalog,
		Logger:  logg,
	}
	r.Group(func(r chi.Router) {
		if cfg.FeatureFlags.RateLimit && p.Redis != nil {
			policy := middleware.NewRateLimitPolicy("metered", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerIP, cfg.HTTP.RateLimitPerUser)
			r.Use(middleware.RateLimit(policy, p.Redis, logg))
		}
		r.Post("/optimize", controllers.Optimize(metered))
		r.Post("/analyze", controllers.Analyze(metered))
	})

	r.Get("/usage/{userId}", controllers.UsageStats(p.Ledger, p.Catalog, logg))
	r.Get("/usage/{userId}/history", controllers.UsageHistory(p.Ledger, logg))
	r.Get("/plans", controllers.PlansList(p.Catalog, logg))

	r.Post("/checkout-session", billingcontrollers.CheckoutSession(p.Checkout, logg))
	r.Post("/portal-session", billingcontrollers.PortalSession(p.Checkout, logg))
	r.Get("/billing/{userId}", billingcontrollers.BillingHistory(p.Billing, logg))

	return r
}
