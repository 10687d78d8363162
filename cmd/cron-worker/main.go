package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/duesengine/internal/app"
	"github.com/angelmondragon/duesengine/internal/cron"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/email"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
	"github.com/angelmondragon/duesengine/pkg/migrate"
	"github.com/angelmondragon/duesengine/pkg/redis"
	pkgstripe "github.com/angelmondragon/duesengine/pkg/stripe"
)

const lockKeyFormat = "dues:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	services, err := app.Build(app.Params{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient.DB(),
		Redis:     redisClient,
		Processor: processor,
		Sender:    sender,
		Metrics:   metrics.NewBillingMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewOverdueSweepJob(cron.OverdueSweepJobParams{
		Logger:   logg,
		Sweeper:  services.Overdue,
		Recorder: services.SweepCache,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue sweep job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewInviteExpiryJob(cron.InviteExpiryJobParams{
		Logger:  logg,
		Expirer: services.Onboarding,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invite expiry job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob)
	if err := registry.RegisterScheduled(sweepJob, cfg.Cron.SweepSchedule); err != nil {
		logg.Error(context.Background(), "invalid sweep schedule", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Claims:   redisClient,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"serviceKind":   cfg.Service.Kind,
		"sweepSchedule": cfg.Cron.SweepSchedule,
		"jobs":          registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
