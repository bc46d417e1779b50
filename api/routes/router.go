package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/missions-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/missions-backend/api/controllers/webhooks"
	"github.com/angelmondragon/missions-backend/api/middleware"
	"github.com/angelmondragon/missions-backend/internal/credits"
	"github.com/angelmondragon/missions-backend/internal/entitlements"
	"github.com/angelmondragon/missions-backend/internal/missions"
	"github.com/angelmondragon/missions-backend/internal/progression"
	"github.com/angelmondragon/missions-backend/internal/subscriptions"
	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/angelmondragon/missions-backend/pkg/redis"
)

// Store is the redis surface the router needs for throttling and replay.
type Store interface {
	middleware.ReplayStore
	redis.RateLimiter
	Ping(context.Context) error
}

type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          Store
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTPMetrics
	Missions       missions.Service
	Feed           missions.FeedService
	Resolver       entitlements.Resolver
	Credits        credits.Service
	Progression    progression.Service
	Subscriptions  subscriptions.Service
	BillingWebhook webhookcontrollers.BillingWebhookService
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	anonymousPolicy := middleware.NewRateLimitPolicy(
		"anonymous",
		cfg.HTTP.AnonymousRateWindow,
		cfg.HTTP.AnonymousRateLimit,
		cfg.HTTP.AnonymousRateLimit,
	)

	deps := map[string]controllers.Pinger{"db": p.DB, "redis": p.Redis}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps, logg))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/billing", webhookcontrollers.BillingWebhook(p.BillingWebhook, logg))
	})

	// anonymous or authenticated
	r.Group(func(r chi.Router) {
		r.Use(
			middleware.OptionalAuth(cfg.JWT, logg),
			middleware.AnonymousRateLimit(anonymousPolicy, p.Redis, logg),
		)
		r.Post("/api/v1/missions", controllers.MissionsGenerate(p.Missions, logg))
		r.Get("/api/v1/missions", controllers.MissionsRecent(p.Missions, logg))
		r.Get("/api/v1/usage", controllers.UsageRemaining(p.Resolver, logg))
		r.Get("/api/v1/missions/ranking", controllers.MissionsRanking(p.Feed, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.Idempotency(p.Redis, logg),
		)

		r.Get("/api/v1/credits", controllers.CreditsBalance(p.Credits, logg))
		r.Get("/api/v1/credits/entries", controllers.CreditsHistory(p.Credits, logg))
		r.Post("/api/v1/credits/exchange", controllers.CreditsExchange(p.Credits, logg))
		r.Get("/api/v1/missions/feed", controllers.MissionsFeed(p.Feed, logg))
		r.Post("/api/v1/missions/feed/swipe", controllers.MissionsSwipe(p.Feed, logg))
		r.Post("/api/v1/missions/{missionID}/like", controllers.MissionsLike(p.Feed, logg))
		r.Get("/api/v1/progress", controllers.Progress(p.Progression, logg))
		r.Get("/api/v1/subscription", controllers.SubscriptionCurrent(p.Subscriptions, logg))
		r.Post("/api/v1/subscription/cancel", controllers.SubscriptionCancel(p.Subscriptions, logg))

		r.With(middleware.RequireRole(logg, enums.MemberRoleAdmin)).
			Post("/api/v1/admin/credits", controllers.AdminCreditsGrant(p.Credits, logg))
	})

	return r
}
