package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/api/rest"
	"github.com/Dhoini/ekaty/internal/api/rest/handlers"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/db"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/integration/anthropic"
	"github.com/Dhoini/ekaty/internal/integration/places"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/kafka"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/migrations"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/internal/repository/partner"
	"github.com/Dhoini/ekaty/internal/repository/postgres"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const webhookLockTTL = 2 * time.Minute

// Repositories хранилища приложения
type Repositories struct {
	Users              repository.UserRepository
	Restaurants        repository.RestaurantRepository
	Reviews            repository.ReviewRepository
	Favorites          repository.FavoriteRepository
	Blog               repository.BlogRepository
	Subscriptions      repository.SubscriptionRepository
	Payments           repository.PaymentRepository
	Claims             repository.ClaimRepository
	WebhookEvents      repository.WebhookEventRepository
	Analytics          repository.AnalyticsRepository
	Leads              repository.LeadRepository
	Campaigns          repository.CampaignRepository
	PartnershipTiers   repository.PartnershipTierRepository
	PartnerRestaurants repository.PartnerRestaurantRepository
}

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Repos    Repositories
	Services rest.Services
	Tokens   *middleware.TokenManager
	Parser   *stripe.EventParser
	Stripe   *stripe.Client
	Places   *places.Client
	Producer kafka.Producer
	Kafka    *kafka.Config

	pool     *pgxpool.Pool
	partners *db.DBClient
	cache    *repository.RedisCacheRepository
	health   map[string]handlers.Check
	closers  []func() error

	httpMetrics        metrics.HTTPMetrics
	integrationMetrics metrics.IntegrationMetrics
}

// Options управляют тем, какие части приложения поднимаются
type Options struct {
	// Migrate применяет миграции при подключении к базам
	Migrate bool
	// Producer подключает продюсер Kafka, если брокеры заданы
	Producer bool
}

// NewLogger создает логгер по конфигурации: JSON в production, цветной вывод иначе
func NewLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Logging.Level)
	if cfg.IsProduction() {
		return logger.NewProduction(level)
	}
	return logger.New(level)
}

// New создает и инициализирует новый экземпляр приложения
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		Kafka:    kafka.NewConfig(cfg.Kafka),
		health:   map[string]handlers.Check{},
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.httpMetrics = metrics.NewHTTPMetrics(a.Registry)
	a.integrationMetrics = metrics.NewIntegrationMetrics(a.Registry)

	if err := a.initStorage(ctx, opts.Migrate); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initCache(); err != nil {
		a.Close()
		return nil, err
	}
	if opts.Producer && a.Kafka.Enabled() {
		producer, err := kafka.NewKafkaProducer(a.Kafka, log.Named("kafka"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Producer = producer
		a.closers = append(a.closers, producer.Close)
	}
	if err := a.initServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStorage(ctx context.Context, migrate bool) error {
	cfg, log := a.Config, a.Logger
	var store *memory.Store
	memoryStore := func() *memory.Store {
		if store == nil {
			store = memory.NewStore()
		}
		return store
	}

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.NewConnection(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if migrate {
			if err := migrations.UpCore(ctx, pool, log); err != nil {
				return err
			}
		}
		a.health["database"] = pool.Ping
		a.Repos.Users = postgres.NewUserRepository(pool, log)
		a.Repos.Restaurants = postgres.NewRestaurantRepository(pool, log)
		a.Repos.Reviews = postgres.NewReviewRepository(pool, log)
		a.Repos.Favorites = postgres.NewFavoriteRepository(pool, log)
		a.Repos.Blog = postgres.NewBlogRepository(pool, log)
		a.Repos.Subscriptions = postgres.NewSubscriptionRepository(pool, log)
		a.Repos.Payments = postgres.NewPaymentRepository(pool, log)
		a.Repos.Claims = postgres.NewClaimRepository(pool, log)
		a.Repos.WebhookEvents = postgres.NewWebhookEventRepository(pool, log)
		a.Repos.Analytics = postgres.NewAnalyticsRepository(pool, log)
	case "memory":
		log.Warnw("Using in-memory storage, data is lost on restart")
		s := memoryStore()
		a.Repos.Users = s.Users()
		a.Repos.Restaurants = s.Restaurants()
		a.Repos.Reviews = s.Reviews()
		a.Repos.Favorites = s.Favorites()
		a.Repos.Blog = s.Blog()
		a.Repos.Subscriptions = s.Subscriptions()
		a.Repos.Payments = s.Payments()
		a.Repos.Claims = s.Claims()
		a.Repos.WebhookEvents = s.WebhookEvents()
		a.Repos.Analytics = s.Analytics()
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	if cfg.Partners.Driver == "memory" {
		s := memoryStore()
		a.Repos.Leads = s.Leads()
		a.Repos.Campaigns = s.Campaigns()
		a.Repos.PartnershipTiers = s.PartnershipTiers()
		a.Repos.PartnerRestaurants = s.PartnerRestaurants()
		return nil
	}
	client, err := db.NewDBClient(ctx, cfg.Partners, log, migrate)
	if err != nil {
		return err
	}
	a.partners = client
	a.closers = append(a.closers, client.Close)
	a.health["partners_db"] = client.DB().PingContext
	a.Repos.Leads = partner.NewLeadRepository(client.DB(), log)
	a.Repos.Campaigns = partner.NewCampaignRepository(client.DB(), log)
	a.Repos.PartnershipTiers = partner.NewPartnershipTierRepository(client.DB(), log)
	a.Repos.PartnerRestaurants = partner.NewPartnerRestaurantRepository(client.DB(), log)
	return nil
}

// initCache оборачивает каталог кешем Redis, если адрес задан
func (a *App) initCache() error {
	if a.Config.Redis.Addr == "" {
		return nil
	}
	cache, err := repository.NewRedisCacheRepository(a.Config.Redis, a.Logger.Named("redis"))
	if err != nil {
		return err
	}
	a.cache = cache
	a.closers = append(a.closers, cache.Close)
	a.health["redis"] = cache.Ping
	a.Repos.Restaurants = repository.NewCachedRestaurantRepository(a.Repos.Restaurants, cache, a.Logger)
	return nil
}

func (a *App) initServices() error {
	cfg, log, r := a.Config, a.Logger, a.Repos

	a.Tokens = middleware.NewTokenManager(cfg.Auth)
	a.Stripe = stripe.NewClient(cfg.Stripe, log.Named("stripe"))
	a.Parser = stripe.NewEventParser(cfg.Stripe.WebhookSecret)

	sender, err := email.NewSender(cfg.Email, log.Named("email"))
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}
	reliable := email.NewReliableSender(sender, resilience.DefaultRetryPolicy, a.integrationMetrics, log.Named("email"))

	var ai service.Completer
	if client := anthropic.NewClient(cfg.Anthropic, a.integrationMetrics, log.Named("anthropic")); client.Configured() {
		ai = client
	}
	var placesClient service.PlacesClient
	if client := places.NewClient(cfg.Places, log.Named("places"), places.WithMetrics(a.integrationMetrics)); client.Configured() {
		a.Places = client
		placesClient = client
	}

	var (
		analyticsPublisher    service.AnalyticsPublisher
		subscriptionPublisher service.SubscriptionPublisher
		locker                service.EventLocker
	)
	if a.Producer != nil {
		analyticsPublisher = a.Producer
		subscriptionPublisher = a.Producer
	}
	if a.cache != nil {
		locker = repository.NewWebhookLocker(a.cache, webhookLockTTL)
	}

	notifier := service.NewNotifier(reliable, r.Users, cfg.App, cfg.Email, log.Named("notifier"))

	a.Services = rest.Services{
		Restaurants: service.NewRestaurantService(r.Restaurants, log, service.WithSearchMetrics(a.integrationMetrics)),
		Reviews:     service.NewReviewService(r.Reviews, r.Favorites, r.Restaurants, r.Users, log),
		Auth:        service.NewAuthService(r.Users, a.Tokens, log),
		Billing:     service.NewBillingService(a.Stripe, r.Users, r.Restaurants, r.Subscriptions, r.Payments, r.Claims, r.PartnershipTiers, log),
		Webhooks: service.NewWebhookService(service.WebhookDeps{
			Events:        r.WebhookEvents,
			Subscriptions: r.Subscriptions,
			Payments:      r.Payments,
			Claims:        r.Claims,
			Users:         r.Users,
			Restaurants:   r.Restaurants,
			Tiers:         stripe.NewTierResolver(cfg.Stripe, r.PartnershipTiers),
			Decoder:       a.Parser,
			Notifier:      notifier,
			Publisher:     subscriptionPublisher,
			Locker:        locker,
			Metrics:       metrics.NewBillingMetrics(a.Registry, log),
		}, log.Named("webhooks")),
		Owner:    service.NewOwnerService(r.Users, r.Restaurants, r.Reviews, r.Favorites, r.Analytics, log),
		Blog:     service.NewBlogService(r.Blog, r.Restaurants, ai, log),
		Outreach: service.NewOutreachService(r.Leads, r.Campaigns, reliable, cfg.App, cfg.Email, log.Named("outreach")),
		Partners: service.NewPartnerService(r.PartnershipTiers, r.PartnerRestaurants, r.Restaurants, log),
		Analytics: service.NewAnalyticsService(service.AnalyticsDeps{
			Events:        r.Analytics,
			Users:         r.Users,
			Restaurants:   r.Restaurants,
			Reviews:       r.Reviews,
			Favorites:     r.Favorites,
			Subscriptions: r.Subscriptions,
			WebhookEvents: r.WebhookEvents,
			Tiers:         r.PartnershipTiers,
			Publisher:     analyticsPublisher,
		}, log),
		Import: service.NewImportService(placesClient, r.Restaurants, log.Named("import")),
	}

	if !a.Stripe.Configured() {
		log.Warnw("Stripe API key is not set, billing endpoints will return 503")
	}
	if ai == nil {
		log.Warnw("Anthropic API key is not set, article generation is disabled")
	}
	return nil
}

// RouterDeps зависимости REST API
func (a *App) RouterDeps() rest.RouterDeps {
	return rest.RouterDeps{
		Config:        a.Config,
		Log:           a.Logger,
		Registry:      a.Registry,
		Metrics:       a.httpMetrics,
		Tokens:        a.Tokens,
		WebhookParser: a.Parser,
		Health:        a.health,
		Services:      a.Services,
	}
}

// Ping проверяет все зависимости; первая ошибка возвращается с именем проверки
func (a *App) Ping(ctx context.Context) error {
	for name, check := range a.health {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// PoolStats статистика пула основной базы; nil для хранилища в памяти
func (a *App) PoolStats() metrics.PoolStats {
	if a.pool == nil {
		return nil
	}
	pool := a.pool
	return func() (int32, int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.IdleConns(), st.TotalConns()
	}
}

// Verifier собирает проверку окружения со всеми подключенными зависимостями
func (a *App) Verifier() *service.Verifier {
	v := service.NewVerifier(a.Config, a.Repos.Restaurants, a.Logger)
	for name, check := range a.health {
		v.AddPinger(name, service.Pinger(check))
	}
	if a.Stripe.Configured() {
		v.AddPinger("stripe", a.Stripe.Ping)
	}
	return v
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Errorw("Failed to release resources", "error", err)
	}
}
