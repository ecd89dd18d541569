package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"fixmyarea-be/access"
	"fixmyarea-be/accounts"
	"fixmyarea-be/identity"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"

	"github.com/gin-gonic/gin"
)

type AccountService interface {
	CreateUser(ctx context.Context, session *access.Session, in identity.SignUpInput, role models.Role) (*models.User, error)
	UpdateUserRole(ctx context.Context, session *access.Session, userID string, role models.Role) (*models.User, error)
	DeleteUser(ctx context.Context, session *access.Session, userID string) error
	ListUsers(ctx context.Context, session *access.Session) ([]*models.User, error)
	UpdateProfile(ctx context.Context, session *access.Session, userID string, patch accounts.ProfilePatch, image *objectstore.Blob) (*models.User, error)
}

type UserController struct {
	accounts      AccountService
	log           *slog.Logger
	maxImageBytes int64
}

func NewUserController(svc AccountService, log *slog.Logger, maxImageBytes int64) *UserController {
	if maxImageBytes <= 0 {
		maxImageBytes = objectstore.DefaultMaxBytes
	}
	return &UserController{accounts: svc, log: log, maxImageBytes: maxImageBytes}
}

func (h *UserController) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context(), session(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// CreateUser lets an admin add an account with any role
func (h *UserController) CreateUser(c *gin.Context) {
	var input struct {
		identity.SignUpInput
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.CreateUser(c.Request.Context(), session(c), input.SignUpInput, models.Role(strings.ToLower(input.Role)))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserController) UpdateUserRole(c *gin.Context) {
	var input struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.UpdateUserRole(c.Request.Context(), session(c), c.Param("id"), models.Role(strings.ToLower(input.Role)))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserController) DeleteUser(c *gin.Context) {
	if err := h.accounts.DeleteUser(c.Request.Context(), session(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// UpdateProfile accepts either a JSON patch or a multipart form whose optional
// "profileImage" file replaces the profile picture.
func (h *UserController) UpdateProfile(c *gin.Context) {
	var (
		patch accounts.ProfilePatch
		image *objectstore.Blob
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+multipartOverhead)
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form: " + err.Error()})
			return
		}
		patch.UserName = formValue(form.Value, "userName")
		patch.Phone = formValue(form.Value, "phone")
		patch.NID = formValue(form.Value, "nid")
		if files := form.File["profileImage"]; len(files) > 0 {
			if image, err = readBlob(files[0], "profileImage", h.maxImageBytes); err != nil {
				respondError(c, h.log, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.UpdateProfile(c.Request.Context(), session(c), c.Param("id"), patch, image)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func formValue(values map[string][]string, key string) *string {
	if v, ok := values[key]; ok && len(v) > 0 {
		return &v[0]
	}
	return nil
}
