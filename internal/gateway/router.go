package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bizmatters/cad-copilot/internal/auth"
	"github.com/bizmatters/cad-copilot/internal/models"
)

// NewRouter wires the public, protected and host routes
func NewRouter(h *Handler, hosts *HostConnector, jwtManager *auth.JWTManager) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(structuredLoggingMiddleware())

	// Health checks MUST be at the root for the WebService standard
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := h.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database connection failed",
			})
			return
		}
		if !hosts.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "no CAD add-in attached",
				"code":   models.ErrCodeHostUnavailable,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.POST("/auth/login", h.Login)
	api.GET("/host/connect", hosts.Connect)

	protected := api.Group("")
	protected.Use(auth.RequireAuth(jwtManager))
	protected.Use(auth.RequireRole(models.RoleOperator))

	protected.POST("/chat", h.Chat)
	protected.POST("/execute", h.Execute)
	protected.POST("/explain", h.Explain)
	protected.GET("/context", h.Context)
	protected.GET("/runs", h.Runs)
	protected.GET("/project/files", h.ProjectFiles)
	protected.GET("/project/file", h.ProjectFile)
	protected.GET("/project/tools", h.ProjectTools)

	return router
}

// structuredLoggingMiddleware logs one structured line per request
func structuredLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if operatorID := c.GetString(auth.OperatorIDKey); operatorID != "" {
			attrs = append(attrs, "operator_id", operatorID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		slog.Info("HTTP request", attrs...)
	}
}
