package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tracker_suite/internal/usecases"
)

const (
	maxRequestBytes = 1 << 20
	requestTimeout  = 30 * time.Second
)

// Services bundles the usecases the API is built on.
type Services struct {
	Auth         *usecases.AuthUsecase
	Clients      *usecases.ClientUsecase
	FollowUps    *usecases.FollowUpUsecase
	Interactions *usecases.InteractionUsecase
	Webhooks     *usecases.WebhookUsecase
	Dashboard    *usecases.DashboardUsecase
	Journey      *usecases.JourneyService
	Admin        *usecases.AdminUsecase

	// Runtime components reported by the admin runtime endpoint, keyed by name.
	Runtime map[string]StatsProvider
}

type StatsProvider interface {
	GetStats() map[string]interface{}
}

type Handler struct {
	svc          Services
	health       *HealthHandler
	secureCookie bool
	log          *zap.Logger
}

func NewHandler(svc Services, health *HealthHandler, secureCookie bool, log *zap.Logger) *Handler {
	return &Handler{svc: svc, health: health, secureCookie: secureCookie, log: log}
}

// NewRouter builds a gin engine with every route registered.
func NewRouter(h *Handler, m *Middleware, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, h, m, gatherer)
	return r
}

func SetupRoutes(r *gin.Engine, h *Handler, m *Middleware, gatherer prometheus.Gatherer) {
	useJSONFieldNames()

	r.Use(RequestID())
	r.Use(m.RequestLogger())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxRequestBytes))
	r.Use(Timeout(requestTimeout))
	r.Use(m.CORSMiddleware())

	r.GET("/health", h.health.Health)
	r.GET("/ready", h.health.Ready)
	r.GET("/metrics", MetricsHandler(gatherer))

	authGroup := r.Group("/api/auth", m.RateLimit())
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/me", m.AuthRequired(), h.Me)
		authGroup.PUT("/password", m.AuthRequired(), h.ChangePassword)
	}

	api := r.Group("/api", m.AuthRequired(), m.RateLimit())

	journey := api.Group("/journey")
	{
		journey.GET("/progress", h.JourneyProgress)
		journey.GET("/milestones", h.JourneyMilestones)
		journey.POST("/milestones/:type/complete", h.CompleteMilestone)
	}

	gated := api.Group("", m.SubscriptionRequired())
	registerResources(gated, h, false)
	{
		gated.GET("/dashboard/stats", h.DashboardStats)
		gated.GET("/analytics/clients-by-status", h.ClientsByStatus)
		gated.GET("/analytics/clients-by-source", h.ClientsBySource)
		gated.GET("/analytics/follow-up-trends", h.FollowUpTrends)
		gated.GET("/analytics/interactions-by-type", h.InteractionsByType)
	}

	v1 := r.Group("/api/v1", m.AuthRequired(), m.RateLimit(), m.SubscriptionRequired())
	registerResources(v1, h, true)

	admin := api.Group("/admin", m.AdminRequired())
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/runtime", h.AdminRuntime)
		admin.GET("/users", h.AdminListUsers)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PUT("/users/:id/status", h.AdminSetStatus)
		admin.POST("/users/:id/extend-trial", h.AdminExtendTrial)
		admin.PUT("/users/:id/permissions", h.AdminSetPermissions)
		admin.PUT("/users/:id/role", m.MasterAdminRequired(), h.AdminSetRole)
		admin.DELETE("/users/:id", m.MasterAdminRequired(), h.AdminDeleteUser)
		admin.POST("/trial-check", h.AdminTrialCheck)
	}
}

// registerResources mounts the CRUD surface. Versioned mounts wrap lists in the pagination envelope.
func registerResources(g *gin.RouterGroup, h *Handler, envelope bool) {
	clients := g.Group("/clients")
	{
		clients.GET("", h.ListClients(envelope))
		clients.POST("", h.CreateClient)
		clients.GET("/:id", h.GetClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.PATCH("/:id", h.UpdateClient)
		clients.DELETE("/:id", h.DeleteClient)
	}

	followUps := g.Group("/follow-ups")
	{
		followUps.GET("", h.ListFollowUps(envelope))
		followUps.POST("", h.CreateFollowUp)
		followUps.GET("/:id", h.GetFollowUp)
		followUps.PUT("/:id", h.UpdateFollowUp)
		followUps.PATCH("/:id", h.UpdateFollowUp)
		followUps.POST("/:id/complete", h.CompleteFollowUp)
		followUps.DELETE("/:id", h.DeleteFollowUp)
	}

	interactions := g.Group("/interactions")
	{
		interactions.GET("", h.ListInteractions(envelope))
		interactions.POST("", h.CreateInteraction)
		interactions.GET("/:id", h.GetInteraction)
	}

	webhooks := g.Group("/webhooks")
	{
		webhooks.GET("", h.ListWebhooks(envelope))
		webhooks.POST("", h.CreateWebhook)
		webhooks.GET("/:id", h.GetWebhook)
		webhooks.PUT("/:id", h.UpdateWebhook)
		webhooks.PATCH("/:id", h.UpdateWebhook)
		webhooks.DELETE("/:id", h.DeleteWebhook)
		webhooks.GET("/:id/deliveries", h.WebhookDeliveries)
		webhooks.POST("/:id/test", h.TestWebhook)
	}
}

// userID returns the id set by AuthRequired.
func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
