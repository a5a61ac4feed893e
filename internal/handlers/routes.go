package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"affiliate-service/internal/auth"
	"affiliate-service/internal/logging"
	"affiliate-service/internal/metrics"
	"affiliate-service/internal/models"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Auth      *AuthHandler
	Affiliate *AffiliateHandler
	Admin     *AdminHandler
	Billing   *BillingHandler

	Tokens         *auth.TokenManager
	InternalKey    string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Log            *zap.Logger
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinLogger(cfg.Log))
	router.Use(cfg.Metrics.GinMiddleware())

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", visitorHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	requireAuth := auth.AuthMiddleware(cfg.Tokens, cfg.Log)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", cfg.Auth.Register)
		authRoutes.POST("/login", cfg.Auth.Login)
		authRoutes.POST("/logout", cfg.Auth.Logout)
		authRoutes.GET("/me", requireAuth, cfg.Auth.GetMe)
	}

	api := router.Group("/api")
	{
		affiliate := api.Group("/affiliate")
		affiliate.POST("/track-click", cfg.Affiliate.TrackClick)

		protected := affiliate.Group("", requireAuth)
		{
			protected.GET("/stats", cfg.Affiliate.GetStats)
			protected.GET("/summary", cfg.Affiliate.GetSummary)
			protected.GET("/code", cfg.Affiliate.GetCode)
			protected.GET("/referrals", cfg.Affiliate.GetReferrals)
			protected.GET("/payouts", cfg.Affiliate.GetPayouts)
			protected.POST("/payouts", cfg.Affiliate.RequestPayout)
		}

		admin := api.Group("/admin", requireAuth, auth.RequireRole(models.RoleAdmin))
		{
			admin.POST("/payouts/:id/paid", cfg.Admin.MarkPayoutPaid)
		}
	}

	internal := router.Group("/internal", InternalKeyMiddleware(cfg.InternalKey))
	{
		internal.POST("/billing/charges", cfg.Billing.RecordCharge)
	}

	return router
}
