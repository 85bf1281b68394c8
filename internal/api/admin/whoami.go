package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bi-platform/apikeys/internal/middleware"
	"github.com/bi-platform/apikeys/internal/users"
)

// UserLookup resolves display details for an authenticated user id.
type UserLookup interface {
	Lookup(id string) (users.User, bool)
}

// @Summary      Current identity
// @Description  Returns the user, workspace and key behind the presented API key.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user_id, workspace, api_key_id, admin, name, email"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/whoami [get]
// WhoAmIHandler reports the authenticated identity
// GET /api/v1/whoami
func WhoAmIHandler(directory UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.CurrentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		resp := gin.H{
			"user_id":    principal.ID,
			"workspace":  c.GetString(middleware.ContextKeyWorkspace),
			"api_key_id": c.GetString(middleware.ContextKeyAPIKeyID),
			"admin":      principal.IsAdmin,
		}
		if u, found := directory.Lookup(principal.ID); found {
			resp["name"] = u.Name
			resp["email"] = u.Email
		}
		c.JSON(http.StatusOK, resp)
	}
}
