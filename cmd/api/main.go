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

	"github.com/angelmondragon/duesengine/api/routes"
	"github.com/angelmondragon/duesengine/internal/app"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/email"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
	"github.com/angelmondragon/duesengine/pkg/migrate"
	"github.com/angelmondragon/duesengine/pkg/redis"
	pkgstripe "github.com/angelmondragon/duesengine/pkg/stripe"
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
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.Bootstrap(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to prepare schema", err)
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
	processor, err := app.NewStripeProcessor(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe processor", err)
		os.Exit(1)
	}

	var sender email.Sender
	if cfg.Sendgrid.APIKey == "" {
		logg.Warn(context.Background(), "sendgrid api key not set; notifications disabled")
	} else if sender, err = email.NewSendgridSender(cfg.Sendgrid); err != nil {
		logg.Error(context.Background(), "failed to create sendgrid sender", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := app.Build(app.Params{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient.DB(),
		Redis:     redisClient,
		Processor: processor,
		Sender:    sender,
		Metrics:   metrics.NewBillingMetrics(registry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			Metrics:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Memberships:          services.Memberships,
			Payments:             services.Payments,
			Payers:               services.Payers,
			Onboarding:           services.Onboarding,
			Sweeper:              services.Overdue,
			SweepCache:           services.SweepCache,
			StripeClient:         stripeClient,
			StripeWebhookService: services.Webhooks,
			StripeWebhookGuard:   services.WebhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
