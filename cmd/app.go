package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tracker_suite/internal/config"
	"tracker_suite/internal/infrastructure"
	httpapi "tracker_suite/internal/interfaces/http"
	"tracker_suite/internal/repository"
	"tracker_suite/internal/usecases"
)

// app holds every long-lived component of the process.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	clock    clock.Clock
	db       *infrastructure.PostgresClient
	registry *prometheus.Registry

	cache       *infrastructure.VersionedCache
	limiter     *infrastructure.UserRateLimiter
	dispatcher  *usecases.WebhookDispatcher
	retryWorker *usecases.RetryWorker
	monitor     *usecases.TrialMonitor
	services    httpapi.Services
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL, cfg.DBMaxConns, log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	clk := clock.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	users := repository.NewUserRepository(db.Pool)
	clients := repository.NewClientRepository(db.Pool)
	followUps := repository.NewFollowUpRepository(db.Pool)
	interactions := repository.NewInteractionRepository(db.Pool)
	webhooks := repository.NewWebhookRepository(db.Pool)
	deliveries := repository.NewDeliveryRepository(db.Pool)
	journeyRepo := repository.NewJourneyRepository(db.Pool)
	stats := repository.NewStatsRepository(db.Pool)

	cache := infrastructure.NewVersionedCache(cfg.CacheTTL)
	mailer := infrastructure.NewMailer(cfg.ResendAPIKey, cfg.SendGridAPIKey, cfg.EmailFrom, log)
	notifier := infrastructure.NewNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChatID, log)

	dispatcher := usecases.NewWebhookDispatcher(webhooks, deliveries, usecases.DispatcherConfig{
		Timeout: cfg.WebhookTimeout,
		Workers: cfg.WebhookWorkers,
	}, clk, infrastructure.NewWebhookMetrics(registry), log)

	journey := usecases.NewJourneyService(usecases.JourneyStores{
		Journey:      journeyRepo,
		Users:        users,
		Clients:      clients,
		FollowUps:    followUps,
		Interactions: interactions,
		Webhooks:     webhooks,
	}, clk, log)
	events := usecases.NewEventBus(dispatcher, journey, log)

	monitor := usecases.NewTrialMonitor(users, db, mailer, notifier, usecases.TrialMonitorConfig{
		Schedule:      cfg.TrialCheckSchedule,
		WarningWindow: cfg.TrialWarningWindow,
		AppURL:        cfg.AppURL,
	}, clk, infrastructure.NewTrialMetrics(registry), log)

	a := &app{
		cfg:         cfg,
		log:         log,
		clock:       clk,
		db:          db,
		registry:    registry,
		cache:       cache,
		limiter:     infrastructure.NewUserRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		dispatcher:  dispatcher,
		retryWorker: usecases.NewRetryWorker(deliveries, webhooks, dispatcher, cfg.WebhookRetryPollInterval, clk, log),
		monitor:     monitor,
		services: httpapi.Services{
			Auth:         usecases.NewAuthUsecase(users, journey, cfg.SessionSecret, cfg.TrialDays, clk, log),
			Clients:      usecases.NewClientUsecase(clients, cache, events),
			FollowUps:    usecases.NewFollowUpUsecase(followUps, clients, cache, events, clk),
			Interactions: usecases.NewInteractionUsecase(interactions, clients, cache, events, clk, log),
			Webhooks:     usecases.NewWebhookUsecase(webhooks, deliveries, dispatcher, journey, cache),
			Dashboard:    usecases.NewDashboardUsecase(stats, cache, clk),
			Journey:      journey,
			Admin:        usecases.NewAdminUsecase(users, journey, monitor, cache, clk, log),
		},
	}
	a.services.Runtime = map[string]httpapi.StatsProvider{
		"webhook_pool": dispatcher,
		"cache":        cache,
		"rate_limiter": a.limiter,
	}
	return a, nil
}

func (a *app) handler() *httpapi.Handler {
	health := httpapi.NewHealthHandler(a.db, a.clock, a.log)
	return httpapi.NewHandler(a.services, health, a.cfg.IsProduction(), a.log)
}

func (a *app) middleware() *httpapi.Middleware {
	return httpapi.NewMiddleware(a.services.Auth, a.limiter, httpapi.MiddlewareConfig{
		AllowedOrigins: a.cfg.AllowedOrigins,
		SecureCookie:   a.cfg.IsProduction(),
	}, a.clock, infrastructure.NewHTTPMetrics(a.registry), a.log)
}

func (a *app) Close() {
	a.db.Close()
}
