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

	"github.com/angelmondragon/missions-backend/api/routes"
	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/credits"
	"github.com/angelmondragon/missions-backend/internal/entitlements"
	"github.com/angelmondragon/missions-backend/internal/missions"
	"github.com/angelmondragon/missions-backend/internal/progression"
	"github.com/angelmondragon/missions-backend/internal/subscriptions"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/internal/users"
	billingwebhook "github.com/angelmondragon/missions-backend/internal/webhooks/billing"
	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/angelmondragon/missions-backend/pkg/migrate"
	"github.com/angelmondragon/missions-backend/pkg/openai"
	"github.com/angelmondragon/missions-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	registry := prometheus.NewRegistry()
	entitlementMetrics := metrics.NewEntitlementMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	usageRepo := usage.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())

	progressionService, err := progression.NewService(dbClient, usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create progression service", err)
		os.Exit(1)
	}

	usageTracking := entitlements.DetectUsageTracking(context.Background(), dbClient.DB())
	if !usageTracking {
		logg.Warn(context.Background(), "usage tables missing, admissions will not be enforced")
	}

	resolver, err := entitlements.NewResolver(entitlements.ResolverParams{
		Config:            cfg.Entitlements,
		UsageRepo:         usageRepo,
		BillingRepo:       billingRepo,
		TransactionRunner: dbClient,
		UsageTracking:     usageTracking,
		Metrics:           entitlementMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement resolver", err)
		os.Exit(1)
	}

	creditsService, err := credits.NewService(credits.ServiceParams{
		Repo:              credits.NewRepository(dbClient.DB()),
		UsageRepo:         usageRepo,
		TransactionRunner: dbClient,
		Progression:       progressionService,
		ExchangeRate:      cfg.Entitlements.CreditsPerUsage,
		Metrics:           entitlementMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:       billingRepo,
		UsageRepo:         usageRepo,
		TransactionRunner: dbClient,
		Progression:       progressionService,
		Metrics:           entitlementMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	guard, err := billingwebhook.NewIdempotencyGuard(redisClient, cfg.Billing.EventIdempotencyTTL, billingwebhook.GuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing idempotency guard", err)
		os.Exit(1)
	}
	webhookService, err := billingwebhook.NewService(billingwebhook.ServiceParams{
		Subscriptions: subscriptionsService,
		Guard:         guard,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing webhook service", err)
		os.Exit(1)
	}

	generator, err := openai.New(cfg.Generation)
	if err != nil {
		logg.Error(context.Background(), "failed to create mission generator", err)
		os.Exit(1)
	}

	missionsRepo := missions.NewRepository(dbClient.DB())
	missionsService, err := missions.NewService(missions.ServiceParams{
		Repo:        missionsRepo,
		Resolver:    resolver,
		Generator:   generator,
		Progression: progressionService,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create missions service", err)
		os.Exit(1)
	}

	feedService, err := missions.NewFeedService(missions.FeedServiceParams{
		Repo:              missionsRepo,
		Users:             usersRepo,
		TransactionRunner: dbClient,
		Progression:       progressionService,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mission feed service", err)
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
		"env":            cfg.App.Env,
		"addr":           addr,
		"instance":       id,
		"usage_tracking": usageTracking,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       registry,
			HTTPMetrics:    httpMetrics,
			Missions:       missionsService,
			Feed:           feedService,
			Resolver:       resolver,
			Credits:        creditsService,
			Progression:    progressionService,
			Subscriptions:  subscriptionsService,
			BillingWebhook: webhookService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
