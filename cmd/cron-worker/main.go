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

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/cron"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/angelmondragon/missions-backend/pkg/migrate"
	"github.com/angelmondragon/missions-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

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
		Environment: cfg.App.Env,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 2*cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())

	holdCleanup, err := cron.NewUsageHoldCleanupJob(cron.UsageHoldCleanupJobParams{
		Logger:    logg,
		UsageRepo: usage.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage hold cleanup job", err)
		os.Exit(1)
	}
	eventRetention, err := cron.NewBillingEventRetentionJob(cron.BillingEventRetentionJobParams{
		Logger:        logg,
		BillingRepo:   billingRepo,
		RetentionDays: cfg.Billing.EventRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing event retention job", err)
		os.Exit(1)
	}
	subscriptionLapse, err := cron.NewSubscriptionLapseJob(cron.SubscriptionLapseJobParams{
		Logger:      logg,
		DB:          dbClient,
		BillingRepo: billingRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription lapse job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(holdCleanup, eventRetention, subscriptionLapse)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron registry", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
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
