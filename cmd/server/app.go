package main

import (
	"context"
	"fmt"
	"time"

	"membership-api/internal/api"
	"membership-api/internal/catalog"
	"membership-api/internal/config"
	"membership-api/internal/database"
	"membership-api/internal/services"
	"membership-api/pkg/logging"
)

// app is the wired service graph shared by every command.
type app struct {
	Store      *database.Store
	Plans      *catalog.Catalog
	Manager    *services.SubscriptionManager
	Reconciler *services.Reconciler
	Checkout   *services.CheckoutService
	Sweeper    *services.Sweeper
	Admin      *services.AdminService

	events  *services.WebhookNotifier
	limiter *services.LocalRateLimiter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store := database.NewStore(database.DB)
	plans := catalog.Default()

	telegram, err := services.NewTelegramGateway(cfg.TelegramBotToken, cfg.TelegramAPIEndpoint, nil)
	if err != nil {
		return nil, err
	}
	notifier := services.NewNotifier(telegram, cfg.OperatorID, 10*time.Second)

	opts := services.FulfillmentOptions{
		Currency: cfg.Currency,
		Timeout:  cfg.ProviderTimeout,
	}
	if cfg.BrevoAPIKey != "" {
		opts.Mailer = services.NewBrevoService(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName, "")
	} else {
		logging.Warnf("BREVO_API_KEY not set, email receipts disabled")
	}
	events := services.NewWebhookNotifier(cfg.EventWebhookURL, cfg.EventWebhookSecret)
	opts.Events = events

	bindings := make(map[string]services.Group)
	for planID, g := range cfg.Groups() {
		if _, ok := plans.Lookup(planID); !ok {
			return nil, fmt.Errorf("group configured for unknown plan %q", planID)
		}
		if g.ChatID == 0 {
			logging.Warnf("No group configured for plan %s", planID)
			continue
		}
		bindings[planID] = services.Group{ChatID: g.ChatID, InviteLink: g.InviteLink}
	}
	fulfillment := services.NewFulfillment(store, notifier, telegram, bindings, opts)

	a := &app{Store: store, Plans: plans, events: events}

	var (
		locker  services.Locker
		limiter services.RateLimiter
	)
	if database.RedisClient != nil {
		rs := services.NewRedisService(database.RedisClient)
		locker, limiter = rs, rs
	} else {
		logging.Warnf("Redis not configured, using in-process locks (single instance only)")
		local := services.NewLocalRateLimiter(time.Minute)
		a.limiter = local
		locker, limiter = services.NewLocalLocker(), local
	}

	provider := services.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.ProviderTimeout)
	verifyLimit := time.Duration(cfg.VerifyRateLimitSeconds) * time.Second

	a.Manager = services.NewSubscriptionManager(store, plans)
	a.Reconciler = services.NewReconciler(store, a.Manager, provider, locker, limiter, fulfillment, verifyLimit)
	a.Checkout = services.NewCheckoutService(store, a.Manager, provider, locker, fulfillment, cfg.Currency, cfg.CallbackURL())
	a.Sweeper = services.NewSweeper(store, a.Manager, fulfillment, cfg.SweepConcurrency)
	a.Admin = services.NewAdminService(cfg.OperatorID, store, a.Manager, fulfillment, a.Sweeper, cfg.Currency)

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database not reachable: %w", err)
	}
	return a, nil
}

// Handler exposes the services to the HTTP layer.
func (a *app) Handler(serviceName string) *api.Handler {
	return &api.Handler{
		Plans:       a.Plans,
		Store:       a.Store,
		Manager:     a.Manager,
		Reconciler:  a.Reconciler,
		Checkout:    a.Checkout,
		Admin:       a.Admin,
		ServiceName: serviceName,
	}
}

// Close stops background work and flushes pending event deliveries.
func (a *app) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	a.events.Wait()
}
