package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/promptability/Website-sub002/api/routes"
	"github.com/promptability/Website-sub002/internal/billing"
	"github.com/promptability/Website-sub002/internal/checkout"
	"github.com/promptability/Website-sub002/internal/entitlements"
	"github.com/promptability/Website-sub002/internal/notifications"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/usage"
	"github.com/promptability/Website-sub002/internal/users"
	stripewebhook "github.com/promptability/Website-sub002/internal/webhooks/stripe"
	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/db"
	"github.com/promptability/Website-sub002/pkg/enums"
	"github.com/promptability/Website-sub002/pkg/instance"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/metrics"
	"github.com/promptability/Website-sub002/pkg/migrate"
	"github.com/promptability/Website-sub002/pkg/redis"
	"github.com/promptability/Website-sub002/pkg/stripe"
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	catalog, err := plans.NewFromConfig(cfg.Stripe)
	if err != nil {
		return err
	}
	loc, err := cfg.Usage.Location()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	entitlementMetrics := metrics.NewEntitlementMetrics(registry)

	ledger, err := usage.NewLedger(usage.LedgerParams{
		Repo:              usage.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Location:          loc,
		Metrics:           entitlementMetrics,
		Logger:            logg,
	})
	if err != nil {
		return err
	}
	gate, err := entitlements.NewGate(ledger, catalog, entitlementMetrics)
	if err != nil {
		return err
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Sender:    newSender(cfg, logg),
		QueueSize: cfg.Sendgrid.QueueSize,
		Workers:   cfg.Sendgrid.Workers,
		Metrics:   metrics.NewNotificationMetrics(registry),
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	dispatcher.Start()
	// Runs after the server has stopped so in-flight webhooks can still enqueue.
	defer func() { err = multierr.Append(err, dispatcher.Close()) }()

	userRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())

	guard, err := stripewebhook.NewInFlightGuard(redisClient, cfg.Billing.InFlightTTL, "billing-webhook")
	if err != nil {
		return err
	}
	policy, err := enums.ParseDowngradePolicy(cfg.Billing.DowngradePolicy)
	if err != nil {
		return err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		UserRepo:          userRepo,
		Ledger:            ledger,
		Catalog:           catalog,
		TransactionRunner: dbClient,
		Notifier:          dispatcher,
		Guard:             guard,
		DowngradePolicy:   policy,
		Metrics:           metrics.NewWebhookMetrics(registry),
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Stripe:  stripeClient,
		Catalog: catalog,
		Users:   userRepo,
		URLs:    cfg.Stripe,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	addr := ":" + port(cfg)
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Catalog:        catalog,
			Ledger:         ledger,
			Gate:           gate,
			Billing:        billingRepo,
			Checkout:       checkoutService,
			WebhookService: webhookService,
			Stripe:         stripeClient,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
		"instance":   instance.ID(),
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout(cfg))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newSender falls back to logging emails when SendGrid is not configured.
func newSender(cfg *config.Config, logg *logger.Logger) notifications.Sender {
	if cfg.Sendgrid.APIKey == "" {
		logg.Warn(context.Background(), "sendgrid api key missing, notifications will be logged only")
		return notifications.NewLogSender(logg)
	}
	sender, err := notifications.NewSendgridSender(cfg.Sendgrid)
	if err != nil {
		logg.Error(context.Background(), "failed to build sendgrid sender, notifications will be logged only", err)
		return notifications.NewLogSender(logg)
	}
	return sender
}

func port(cfg *config.Config) string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return cfg.App.Port
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.HTTP.ShutdownTimeout > 0 {
		return cfg.HTTP.ShutdownTimeout
	}
	return 15 * time.Second
}
