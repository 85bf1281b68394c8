// Package admin implements the authenticated HTTP handlers for managing API keys.
// Every route in this package sits behind middleware.AuthMiddleware; handlers read the acting
// principal from the gin context and leave ownership checks to the apikeys service.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/db/models"
	"github.com/bi-platform/apikeys/internal/middleware"
)

// KeyService is the part of apikeys.Service the handlers use.
type KeyService interface {
	CreateKey(ctx context.Context, p apikeys.Principal, req apikeys.CreateKeyRequest) (*apikeys.CreatedKey, error)
	RevokeKey(ctx context.Context, p apikeys.Principal, id string) (*models.APIKey, error)
	GetKey(ctx context.Context, p apikeys.Principal, id string) (*models.APIKey, error)
	ListKeys(ctx context.Context, p apikeys.Principal, userID string, activeOnly bool) ([]*models.APIKey, error)
	DeleteKey(ctx context.Context, p apikeys.Principal, id string) error
}

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	svc   KeyService
	clock clock.Clock
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance. A nil clock uses clock.System.
func NewAPIKeyHandlers(svc KeyService, clk clock.Clock) *APIKeyHandlers {
	if clk == nil {
		clk = clock.System{}
	}
	return &APIKeyHandlers{svc: svc, clock: clk}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name          string  `json:"name"`
	UserID        string  `json:"user_id"` // admins only; defaults to the caller
	WorkspaceName string  `json:"workspace_name"`
	ExpiresOn     *string `json:"expires_on"` // RFC3339 format
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	UserID        string     `json:"user_id"`
	WorkspaceName string     `json:"workspace_name"`
	Key           string     `json:"key"` // Only returned once during creation
	KeyPrefix     string     `json:"key_prefix"`
	ExpiresOn     *time.Time `json:"expires_on"`
	CreatedOn     time.Time  `json:"created_on"`
}

// APIKeyResponse is the public view of a stored key.
type APIKeyResponse struct {
	*models.APIKey
	Status string `json:"status"` // active, revoked or expired
}

func (h *APIKeyHandlers) view(k *models.APIKey) APIKeyResponse {
	status := "active"
	switch {
	case k.IsRevoked():
		status = "revoked"
	case k.IsExpired(h.clock.Now()):
		status = "expired"
	}
	return APIKeyResponse{APIKey: k, Status: status}
}

// @Summary      List API keys
// @Description  List the caller's API keys, including revoked and expired ones unless active=true. Admins may list another user's keys with user_id.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        active   query  bool    false  "Only keys that can still authenticate"
// @Param        user_id  query  string  false  "Owner to list (admins only)"
// @Success      200  {object}  map[string]interface{}  "keys: list of API keys"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden - not an admin"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [get]
// ListAPIKeysHandler lists API keys
// GET /api/v1/apikeys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		activeOnly := c.Query("active") == "true"
		keys, err := h.svc.ListKeys(c.Request.Context(), principal, c.Query("user_id"), activeOnly)
		if err != nil {
			respondError(c, err, http.StatusForbidden)
			return
		}

		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, h.view(k))
		}
		c.JSON(http.StatusOK, gin.H{"keys": resp})
	}
}

// @Summary      Create API key
// @Description  Create a new API key. The full key is only returned once, in this response.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "API key creation request"
// @Success      201  {object}  CreateAPIKeyResponse  "API key created (full key returned once)"
// @Failure      400  {object}  map[string]interface{}  "Invalid request: missing name or expiry not in the future"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden - creating a key for another user"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [post]
// CreateAPIKeyHandler creates a new API key
// POST /api/v1/apikeys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		var expiresOn *time.Time
		if req.ExpiresOn != nil && *req.ExpiresOn != "" {
			t, err := time.Parse(time.RFC3339, *req.ExpiresOn)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_on format, expected RFC3339"})
				return
			}
			expiresOn = &t
		}

		created, err := h.svc.CreateKey(c.Request.Context(), principal, apikeys.CreateKeyRequest{
			UserID:        req.UserID,
			Name:          req.Name,
			WorkspaceName: req.WorkspaceName,
			ExpiresOn:     expiresOn,
		})
		if err != nil {
			respondError(c, err, http.StatusForbidden)
			return
		}

		k := created.Key
		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			ID:            k.ID,
			Name:          k.Name,
			UserID:        k.UserID,
			WorkspaceName: k.WorkspaceName,
			Key:           created.Plaintext,
			KeyPrefix:     k.KeyPrefix,
			ExpiresOn:     k.ExpiresOn,
			CreatedOn:     k.CreatedOn,
		})
	}
}

// @Summary      Get API key
// @Description  Get a single API key. Keys owned by someone else are reported as not found unless the caller is an admin.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  APIKeyResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [get]
// GetAPIKeyHandler retrieves a specific API key
// GET /api/v1/apikeys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		key, err := h.svc.GetKey(c.Request.Context(), principal, c.Param("id"))
		if err != nil {
			respondError(c, err, http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, h.view(key))
	}
}

// @Summary      Revoke API key
// @Description  Permanently revoke an API key. The record stays listed with status revoked.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  APIKeyResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      409  {object}  map[string]interface{}  "API key already revoked"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id}/revoke [post]
// RevokeAPIKeyHandler revokes an API key
// POST /api/v1/apikeys/:id/revoke
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		key, err := h.svc.RevokeKey(c.Request.Context(), principal, c.Param("id"))
		if err != nil {
			respondError(c, err, http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, h.view(key))
	}
}

// @Summary      Delete API key
// @Description  Remove an API key record outright. Admin only; revocation is the normal path.
// @Tags         API Keys
// @Security     Bearer
// @Param        id  path  string  true  "API key ID"
// @Success      204  "Deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden - not an admin"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [delete]
// DeleteAPIKeyHandler deletes an API key
// DELETE /api/v1/apikeys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		if err := h.svc.DeleteKey(c.Request.Context(), principal, c.Param("id")); err != nil {
			respondError(c, err, http.StatusForbidden)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// respondError maps service errors to HTTP responses. forbiddenStatus lets lookups by id answer
// 404 for keys the caller may not see, so ids of other users' keys are not confirmed.
func respondError(c *gin.Context, err error, forbiddenStatus int) {
	switch {
	case apikeys.IsValidation(err):
		respondValidation(c, err, forbiddenStatus)
	case errors.Is(err, apikeys.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
	case errors.Is(err, apikeys.ErrAlreadyRevoked):
		c.JSON(http.StatusConflict, gin.H{"error": "API key already revoked"})
	default:
		slog.Error("api key request failed", "error", err, "path", c.FullPath(),
			"request_id", c.GetString(middleware.RequestIDKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func respondValidation(c *gin.Context, err error, forbiddenStatus int) {
	var (
		missing *apikeys.MissingFieldError
		invalid *apikeys.InvalidFieldError
	)
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": missing.Field})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": invalid.Field})
	case errors.Is(err, apikeys.ErrForbidden):
		if forbiddenStatus == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(forbiddenStatus, gin.H{"error": "Forbidden"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
