package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/apperr"
)

const UserIDKey = "user_id"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth validates the Bearer token and stores the user id in the context.
// Failures are reported through ErrorHandler.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			_ = ctx.Error(apperr.Unauthorizedf("missing token"))
			ctx.Abort()
			return
		}
		userID, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			_ = ctx.Error(apperr.Wrap(apperr.Unauthorized, err, "invalid token"))
			ctx.Abort()
			return
		}

		ctx.Set(UserIDKey, userID)
		ctx.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(string)
	}
	return ""
}
