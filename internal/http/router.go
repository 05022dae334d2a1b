package http

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())

	health := NewHealthController(cfg.Database, cfg.Version)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	if cfg.AdminTokenHash == "" {
		log.Printf("WARNING: ADMIN_TOKEN_HASH is not set, admin API is unauthenticated")
	}
	limiter := cfg.AdminAttempts
	if limiter == nil {
		limiter = NewAttemptLimiter(DefaultAttemptLimitConfig())
	}
	admin := router.Group("/api/admin", AdminAuthMiddleware(cfg.AdminTokenHash, limiter))

	if cfg.Trigger != nil && cfg.Status != nil && cfg.Runs != nil {
		syncController := NewSyncController(cfg.Trigger, cfg.Status, cfg.Runs)
		admin.POST("/sync", syncController.Trigger)
		admin.GET("/sync/status", syncController.Status)
		admin.GET("/sync/runs/:run_id", syncController.GetRun)
	}

	if cfg.Listings != nil && cfg.Agents != nil {
		stats := NewStatsController(cfg.Listings, cfg.Agents)
		admin.GET("/stats", stats.GetStats)
	}

	return router
}
