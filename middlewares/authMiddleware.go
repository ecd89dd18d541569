package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fixmyarea-be/identity"
	"fixmyarea-be/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey = "user_id"
	CallerKey = "caller"
)

// Authenticator resolves a raw session token to its caller.
type Authenticator interface {
	CurrentCaller(ctx context.Context, rawToken string) (*identity.Caller, error)
}

func AuthMiddleware(auth Authenticator, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			c.Abort()
			return
		}

		caller, err := auth.CurrentCaller(c.Request.Context(), tokenString)
		if errors.Is(err, identity.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			c.Abort()
			return
		}
		if err != nil {
			log.Error("token validation failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Something went wrong"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, caller.ID)
		c.Set(CallerKey, caller)
		c.Next()
	}
}

// bearerToken reads the token from the Authorization header, falling back to the auth
// cookie set at login.
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := c.Cookie(utils.AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// CallerFrom returns the caller stored by AuthMiddleware, or nil.
func CallerFrom(c *gin.Context) *identity.Caller {
	v, ok := c.Get(CallerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*identity.Caller)
	return caller
}
