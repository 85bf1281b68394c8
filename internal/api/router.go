// Package api wires together all HTTP routes for the API key service.
//
// Route grouping:
//   - Probes and /version are unauthenticated and skipped by request metrics.
//   - Everything under /api/v1/ is rate limited and then requires a valid API key.
//     The rate limiter runs first so credential guessing never reaches bcrypt unthrottled.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bi-platform/apikeys/internal/api/admin"
	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/config"
	"github.com/bi-platform/apikeys/internal/middleware"
	"github.com/bi-platform/apikeys/internal/users"
)

// Version is reported by /version. Overridden at build time with -ldflags.
var Version = "0.1.0"

// Pinger is satisfied by *sqlx.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are the long-lived components the router hands to handlers.
type Dependencies struct {
	Keys    *apikeys.Service
	Users   *users.Directory
	Limiter middleware.Limiter // nil disables rate limiting
	DB      Pinger             // nil when keys live in memory
	Clock   clock.Clock
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/ready"))
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	if deps.Limiter != nil {
		apiV1.Use(middleware.RateLimitMiddleware(deps.Limiter))
	}
	apiV1.Use(middleware.AuthMiddleware(deps.Keys, deps.Users, cfg.Auth.APIKeys.HeaderFallback))
	{
		apiV1.GET("/whoami", admin.WhoAmIHandler(deps.Users))

		keyHandlers := admin.NewAPIKeyHandlers(deps.Keys, deps.Clock)
		apiKeys := apiV1.Group("/apikeys")
		{
			apiKeys.GET("", keyHandlers.ListAPIKeysHandler())
			apiKeys.POST("", keyHandlers.CreateAPIKeyHandler())
			apiKeys.GET("/:id", keyHandlers.GetAPIKeyHandler())
			apiKeys.POST("/:id/revoke", keyHandlers.RevokeAPIKeyHandler())
			apiKeys.DELETE("/:id", keyHandlers.DeleteAPIKeyHandler())
		}
	}

	return router
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the key store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if db == nil {
			checks["store"] = "memory"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "database not ready",
				})
				return
			}
			checks["database"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version, key_format"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
			"key_format":  "pst",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The handler installed by telemetry.SetupLogger
// decides between JSON and text output. Credentials never appear here: only the path and query
// are logged, not headers.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		slog.String("user_id", c.GetString(middleware.ContextKeyUserID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+middleware.APIKeyHeader+", "+middleware.RequestIDHeader)
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
