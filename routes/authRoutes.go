package routes

import (
	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine, h Handlers) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.Auth.RegisterUser)
		auth.POST("/login", h.Auth.LoginUser)
		auth.POST("/logout", h.Authenticate, h.Auth.LogoutUser)
		auth.GET("/me", h.Authenticate, h.Auth.GetMe)
		auth.POST("/password-reset", h.Auth.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.Auth.ConfirmPasswordReset)
	}
}
