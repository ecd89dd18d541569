package routes

import (
	"net/http"

	"fixmyarea-be/controllers"

	"github.com/gin-gonic/gin"
)

// Handlers are the controllers and middleware the routes are built from.
type Handlers struct {
	Auth   *controllers.AuthController
	Issues *controllers.IssueController
	Users  *controllers.UserController
	// Files is nil unless images are stored in GridFS.
	Files *controllers.FileController

	Authenticate gin.HandlerFunc
	IssueLimit   gin.HandlerFunc
}

// Register mounts every route on r.
func Register(r *gin.Engine, h Handlers) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	AuthRoutes(r, h)
	IssueRoutes(r, h)
	UserRoutes(r, h)
	if h.Files != nil {
		r.GET("/files/:id", h.Files.GetFile)
	}
}
