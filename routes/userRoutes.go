package routes

import (
	"github.com/gin-gonic/gin"
)

func UserRoutes(r *gin.Engine, h Handlers) {
	users := r.Group("/api/users", h.Authenticate)
	{
		users.GET("", h.Users.ListUsers)
		users.POST("", h.Users.CreateUser)
		users.PATCH("/:id/role", h.Users.UpdateUserRole)
		users.DELETE("/:id", h.Users.DeleteUser)
		users.PATCH("/:id/profile", h.Users.UpdateProfile)
	}
}
