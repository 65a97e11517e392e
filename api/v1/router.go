package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/app"
	"carbon-scribe/verification-registry/internal/assignees"
	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/notifications"
	"carbon-scribe/verification-registry/internal/projects"
	"carbon-scribe/verification-registry/internal/reports"
	"carbon-scribe/verification-registry/internal/workflow"
)

// NewRouter registers every registry route on a fresh gin engine
func NewRouter(a *app.App) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.Logger), cors())

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"backend":   a.Config.Store.Backend,
			"timestamp": time.Now(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	authHandler := auth.NewHandler()
	router.GET("/auth/ping", authHandler.Ping)
	authHandler.RegisterRoutes(router.Group("/auth", auth.RequireAuth(a.Tokens, a.Logger)))

	api := router.Group("/api/v1", auth.RequireAuth(a.Tokens, a.Logger))
	{
		projects.NewHandler(a.Engine, a.Engine, a.Logger).RegisterRoutes(api)
		workflow.NewHandler(a.Engine, a.Logger).RegisterRoutes(api)
		notifications.NewHandler(a.Feed, a.Logger).RegisterRoutes(api)
	}

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	{
		assignees.NewHandler(a.Directory, a.Logger).RegisterRoutes(admin)
		reports.NewHandler(a.Reports, a.Logger).RegisterRoutes(admin)
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// CORS Middleware
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
