// Package middleware provides Gin HTTP middleware for API key authentication, rate limiting,
// security headers, request ids and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth so credential guessing is throttled before any bcrypt work.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bi-platform/apikeys/internal/apikeys"
)

// gin.Context keys set by AuthMiddleware.
const (
	ContextKeyUserID     = "user_id"
	ContextKeyWorkspace  = "workspace"
	ContextKeyAPIKeyID   = "api_key_id"
	ContextKeyAuthMethod = "auth_method"
	ContextKeyPrincipal  = "principal"
)

// APIKeyHeader is the fallback header consulted when Authorization is absent.
const APIKeyHeader = "X-API-Key"

// Authenticator checks a raw credential header value.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (apikeys.AuthResult, error)
}

// PrincipalResolver turns an authenticated user id into an acting principal.
type PrincipalResolver interface {
	Principal(userID string) apikeys.Principal
}

// AuthMiddleware requires a valid API key. Every rejection gets the same 401 body so callers
// cannot tell an unknown key from a revoked or expired one; the precise outcome is only logged.
func AuthMiddleware(authn Authenticator, principals PrincipalResolver, headerFallback bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && headerFallback {
			header = c.GetHeader(APIKeyHeader)
		}

		res, err := authn.Authenticate(c.Request.Context(), header)
		if err != nil {
			slog.Error("api key authentication failed", "error", err, "request_id", c.GetString(RequestIDKey))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		if !res.OK() {
			slog.Debug("request rejected", "outcome", res.Outcome.String(), "path", c.FullPath(),
				"request_id", c.GetString(RequestIDKey))
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		c.Set(ContextKeyUserID, res.UserID)
		c.Set(ContextKeyWorkspace, res.Workspace)
		c.Set(ContextKeyAPIKeyID, res.KeyID)
		c.Set(ContextKeyAuthMethod, "api_key")
		c.Set(ContextKeyPrincipal, principals.Principal(res.UserID))

		c.Next()
	}
}

// CurrentPrincipal returns the principal stored by AuthMiddleware.
func CurrentPrincipal(c *gin.Context) (apikeys.Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return apikeys.Principal{}, false
	}
	p, ok := v.(apikeys.Principal)
	return p, ok
}
