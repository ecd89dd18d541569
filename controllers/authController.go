package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"fixmyarea-be/identity"
	"fixmyarea-be/middlewares"
	"fixmyarea-be/models"
	"fixmyarea-be/utils"

	"github.com/gin-gonic/gin"
)

type IdentityService interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (*models.User, *identity.Token, error)
	SignIn(ctx context.Context, email, password string) (*models.User, *identity.Token, error)
	SignOut(ctx context.Context, caller *identity.Caller) error
	Me(ctx context.Context, caller *identity.Caller) (*models.User, error)
	ResetPassword(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
}

type AuthController struct {
	identity IdentityService
	cookies  utils.CookieSettings
	log      *slog.Logger
}

func NewAuthController(svc IdentityService, cookies utils.CookieSettings, log *slog.Logger) *AuthController {
	return &AuthController{identity: svc, cookies: cookies, log: log}
}

// RegisterUser handles user registration
func (h *AuthController) RegisterUser(c *gin.Context) {
	var input identity.SignUpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.identity.SignUp(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SetAuthCookie(c, h.cookies, token.Value, token.ExpiresAt)

	c.JSON(http.StatusCreated, gin.H{
		"user":      user,
		"token":     token.Value,
		"expiresAt": token.ExpiresAt,
	})
}

// LoginUser handles user login
func (h *AuthController) LoginUser(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.identity.SignIn(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SetAuthCookie(c, h.cookies, token.Value, token.ExpiresAt)

	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"token":     token.Value,
		"expiresAt": token.ExpiresAt,
	})
}

// GetMe retrieves the authenticated user's information
func (h *AuthController) GetMe(c *gin.Context) {
	user, err := h.identity.Me(c.Request.Context(), middlewares.CallerFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// LogoutUser ends the caller's session and clears the auth_token cookie
func (h *AuthController) LogoutUser(c *gin.Context) {
	if err := h.identity.SignOut(c.Request.Context(), middlewares.CallerFrom(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.ClearAuthCookie(c, h.cookies)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

func (h *AuthController) RequestPasswordReset(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.identity.ResetPassword(c.Request.Context(), input.Email); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "If the email is registered, a reset link has been sent",
	})
}

func (h *AuthController) ConfirmPasswordReset(c *gin.Context) {
	var input struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.identity.ConfirmReset(c.Request.Context(), input.Token, input.Password); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Password updated, please log in again",
	})
}
