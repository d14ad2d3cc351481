package rest

import (
	"github.com/Dhoini/ekaty/internal/api/rest/handlers"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services сервисы, которые обслуживает REST API
type Services struct {
	Restaurants service.RestaurantService
	Reviews     service.ReviewService
	Auth        service.AuthService
	Billing     service.BillingService
	Webhooks    service.WebhookService
	Owner       service.OwnerService
	Blog        service.BlogService
	Outreach    service.OutreachService
	Partners    service.PartnerService
	Analytics   service.AnalyticsService
	Import      service.ImportService
}

// RouterDeps зависимости маршрутизатора
type RouterDeps struct {
	Config        *config.Config
	Log           *logger.Logger
	Registry      *prometheus.Registry
	Metrics       metrics.HTTPMetrics
	Tokens        middleware.TokenValidator
	WebhookParser handlers.EventParser
	Health        map[string]handlers.Check
	Services      Services
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps) *gin.Engine {
	cfg, log, svc := deps.Config, deps.Log, deps.Services
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", handlers.NewHealthHandler(deps.Health).HealthCheck)
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	jwt := middleware.NewJWTMiddleware(cfg.Auth, log, deps.Tokens)
	authed := jwt.RequireAuth()
	admin := jwt.RequireAuth(domain.RoleAdmin)

	restaurants := handlers.NewRestaurantHandler(svc.Restaurants, log)
	reviews := handlers.NewReviewHandler(svc.Reviews, log)
	auth := handlers.NewAuthHandler(svc.Auth, cfg.Auth, log)
	billing := handlers.NewBillingHandler(svc.Billing, log)
	webhooks := handlers.NewWebhookHandler(deps.WebhookParser, svc.Webhooks, log)
	owner := handlers.NewOwnerHandler(svc.Owner, log)
	blog := handlers.NewBlogHandler(svc.Blog, log)
	outreach := handlers.NewOutreachHandler(svc.Outreach, log)
	partners := handlers.NewPartnerHandler(svc.Partners, log)
	analytics := handlers.NewAnalyticsHandler(svc.Analytics, log)
	imports := handlers.NewImportHandler(svc.Import, log)

	// Вебхуки Stripe идут мимо лимитера и JWT, подлинность проверяется подписью
	r.POST("/api/webhooks/stripe", webhooks.HandleStripeWebhook)

	api := r.Group("/api")
	api.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	api.Use(jwt.OptionalAuth())
	{
		api.GET("/restaurants", restaurants.Search)
		api.GET("/restaurants/map", restaurants.MapPins)
		api.POST("/restaurants/roulette", restaurants.Roulette)
		api.GET("/restaurants/:id", restaurants.Get)
		api.GET("/restaurants/:id/reviews", reviews.List)
		api.POST("/restaurants/:id/reviews", authed, reviews.Save)
		api.DELETE("/reviews/:id", authed, reviews.Delete)

		api.GET("/blog", blog.ListPublished)
		api.GET("/blog/:slug", blog.GetPublished)
		api.GET("/tiers", partners.ActiveTiers)
		api.POST("/events", analytics.Track)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", auth.Register)
			authGroup.POST("/login", auth.Login)
			authGroup.POST("/logout", auth.Logout)
			authGroup.GET("/me", authed, auth.Me)
		}

		me := api.Group("/me", authed)
		{
			me.GET("/favorites", reviews.Favorites)
			me.POST("/favorites/:id", reviews.AddFavorite)
			me.DELETE("/favorites/:id", reviews.RemoveFavorite)
		}

		billingGroup := api.Group("/billing", authed)
		{
			billingGroup.POST("/checkout", billing.Checkout)
			billingGroup.POST("/portal", billing.Portal)
			billingGroup.GET("/subscriptions", billing.Subscriptions)
			billingGroup.POST("/subscriptions/:id/cancel", billing.Cancel)
			billingGroup.GET("/payments", billing.Payments)
			billingGroup.GET("/claims", billing.Claims)
		}

		ownerGroup := api.Group("/owner", authed)
		{
			ownerGroup.GET("/restaurants", owner.Restaurants)
			ownerGroup.PATCH("/restaurants/:id", owner.UpdateListing)
			ownerGroup.GET("/restaurants/:id/stats", owner.Stats)
		}

		adminGroup := api.Group("/admin", admin)
		{
			adminGroup.GET("/restaurants", restaurants.AdminList)
			adminGroup.POST("/restaurants", restaurants.Create)
			adminGroup.POST("/restaurants/import", imports.ImportFile)
			adminGroup.PATCH("/restaurants/:id", restaurants.Update)
			adminGroup.DELETE("/restaurants/:id", restaurants.Delete)
			adminGroup.POST("/places/import", imports.ImportPlaces)
			adminGroup.POST("/places/sync", imports.SyncPlaces)

			adminGroup.GET("/blog", blog.List)
			adminGroup.POST("/blog", blog.Create)
			adminGroup.POST("/blog/generate", blog.Generate)
			adminGroup.GET("/blog/:id", blog.Get)
			adminGroup.PATCH("/blog/:id", blog.Update)
			adminGroup.POST("/blog/:id/publish", blog.Publish)
			adminGroup.POST("/blog/:id/unpublish", blog.Unpublish)
			adminGroup.DELETE("/blog/:id", blog.Delete)

			adminGroup.GET("/leads", outreach.ListLeads)
			adminGroup.POST("/leads", outreach.CreateLead)
			adminGroup.POST("/leads/import", outreach.ImportLeads)
			adminGroup.GET("/leads/export", outreach.ExportLeads)
			adminGroup.PUT("/leads/:id", outreach.UpdateLead)
			adminGroup.GET("/campaigns", outreach.ListCampaigns)
			adminGroup.POST("/campaigns", outreach.CreateCampaign)
			adminGroup.GET("/campaigns/:id", outreach.GetCampaign)
			adminGroup.GET("/campaigns/:id/preview", outreach.Preview)
			adminGroup.POST("/campaigns/:id/send", outreach.Send)
			adminGroup.GET("/campaigns/:id/messages", outreach.Messages)
			adminGroup.GET("/campaigns/:id/messages/export", outreach.ExportMessages)

			adminGroup.GET("/tiers", partners.AllTiers)
			adminGroup.PUT("/tiers", partners.UpsertTier)
			adminGroup.GET("/partners", partners.Restaurants)
			adminGroup.POST("/partners", partners.CreateRestaurant)
			adminGroup.POST("/partners/reconcile", partners.Reconcile)

			adminGroup.GET("/analytics", analytics.Dashboard)
			adminGroup.GET("/analytics/events/export", analytics.ExportEvents)
			adminGroup.GET("/launch-metrics", analytics.LaunchMetrics)
			adminGroup.POST("/launch-metrics", analytics.RecordLaunchMetric)

			adminGroup.GET("/webhooks", webhooks.ListEvents)
			adminGroup.GET("/webhooks/:id", webhooks.GetEvent)
			adminGroup.POST("/webhooks/:id/retry", webhooks.Retry)
		}
	}
	return r
}
