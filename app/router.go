package app

import (
	"time"

	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) *gin.Engine {
	origins := s.cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, outcomeHeader, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.GET("/api/tiers", s.Tiers)
	router.POST("/api/stripe/webhook", s.StripeWebhook)

	if auth.AuthDisabled(s.cfg.Auth.Disabled) {
		s.logger.Warn("auth disabled via AUTH_DISABLED for local development")
	}

	protected := router.Group("/api")
	protected.Use(auth.Middleware(s.verifier, auth.MiddlewareConfig{
		DenyRoles:   []string{auth.AnonRole},
		DisableAuth: s.cfg.Auth.Disabled,
		Logger:      s.logger,
	}))
	protected.GET("/usage", s.Usage)

	protected.POST("/hs-suggest", metered(s, models.ActionAIAnalysis, validateHSSuggest, s.suggestHS))
	protected.POST("/duty-estimate", metered(s, models.ActionAIAnalysis, validateDutyEstimate, s.estimateDuty))
	protected.POST("/incoterms-suggest", metered(s, models.ActionAIAnalysis, validateIncoterms, s.suggestIncoterms))
	protected.POST("/extract-manifest", metered(s, models.ActionAIAnalysis, validateExtract, s.extractManifest))
	protected.POST("/analyze-manifest", metered(s, models.ActionAIAnalysis, validateManifest, s.analyzeManifest))
	protected.POST("/policy-check", metered(s, models.ActionPolicyCheck, validateManifest, s.checkPolicy))
	protected.POST("/remix", metered(s, models.ActionRemix, validateManifest, s.remixManifest))
	protected.POST("/export", metered(s, models.ActionExport, validateExport, s.exportCSV))

	protected.POST("/billing/create-checkout-session", s.CreateCheckoutSession)
	protected.POST("/billing/portal-session", s.CreatePortalSession)

	return router
}
