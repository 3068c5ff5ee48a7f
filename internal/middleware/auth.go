package middleware

import (
	"crypto/subtle"
	"net/http"

	"membership-api/internal/response"

	"github.com/gin-gonic/gin"
)

// OperatorIDKey is the gin context key holding the authenticated operator.
const OperatorIDKey = "operator_id"

// APIKeyMiddleware guards the routes the chat front end calls on behalf of a
// user. Those routes trust the user id in the request, so only a caller holding
// the shared key in X-API-Key may reach them.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			response.AbortWithError(c, http.StatusServiceUnavailable, "api_disabled", "API key is not configured")
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthenticated", "Missing X-API-Key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthenticated", "Invalid API key")
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware guards operator routes. Callers send the admin API key
// in X-Admin-Key and their messaging identity in X-Operator-ID.
func AdminAuthMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			response.AbortWithError(c, http.StatusServiceUnavailable, "admin_disabled", "Admin API is disabled")
			return
		}

		key := c.GetHeader("X-Admin-Key")
		operatorID := c.GetHeader("X-Operator-ID")
		if key == "" || operatorID == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthenticated", "Missing X-Admin-Key or X-Operator-ID")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthenticated", "Invalid admin key")
			return
		}

		c.Set(OperatorIDKey, operatorID)
		c.Next()
	}
}
