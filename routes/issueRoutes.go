package routes

import (
	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine, h Handlers) {
	create := []gin.HandlerFunc{h.Authenticate}
	if h.IssueLimit != nil {
		create = append(create, h.IssueLimit)
	}
	create = append(create, h.Issues.CreateIssue)

	issue := r.Group("/api/issues")
	{
		issue.POST("", create...)
		issue.GET("", h.Authenticate, h.Issues.GetAllIssues)
		issue.GET("/:id", h.Authenticate, h.Issues.GetIssue)
		issue.PATCH("/:id/status", h.Authenticate, h.Issues.UpdateIssueStatus)
		issue.POST("/:id/upvote", h.Authenticate, h.Issues.HandleVoteOnIssue)
	}

	r.GET("/api/admin/statistics", h.Authenticate, h.Issues.GetIssueAnalytics)
}
