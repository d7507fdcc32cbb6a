package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"serpgap/internal/logger"
	"serpgap/internal/service"
)

// Gin context keys set by the auth middlewares.
const (
	ContextUserID = "user_id"
)

// WebhookAuth authenticates webhook requests with an opaque bearer token.
// The token is compared by stored hash, never in plaintext.
// Parameters:
//   - auth: auth service used for token resolution.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func WebhookAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed Authorization header",
			})
			return
		}

		user, err := auth.VerifyWebhookToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid webhook token",
			})
			return
		}

		setUser(c, user.ID)
		c.Next()
	}
}

// JWTAuth authenticates dashboard requests with an HS256 session token.
// Parameters:
//   - auth: auth service used for token validation.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func JWTAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed Authorization header",
			})
			return
		}

		userID, err := auth.VerifyJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired session token",
			})
			return
		}

		setUser(c, userID)
		c.Next()
	}
}

// UserID returns the authenticated user ID set by WebhookAuth or JWTAuth.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - string: user ID, empty if the request is unauthenticated.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func setUser(c *gin.Context, userID string) {
	c.Set(ContextUserID, userID)
	ctx := logger.SetUserID(c.Request.Context(), userID)
	c.Request = c.Request.WithContext(ctx)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
