// api/handlers/auth_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/api/middleware"
	"github.com/meditech/meditech-backend/api/models"
	"github.com/meditech/meditech-backend/internal/auth"
	"github.com/meditech/meditech-backend/internal/domain"
	"github.com/meditech/meditech-backend/internal/logger"
	"github.com/meditech/meditech-backend/internal/metrics"
	"github.com/meditech/meditech-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	Users    *storage.UserRepository
	Identity *middleware.IdentityManager
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(users *storage.UserRepository, identity *middleware.IdentityManager) *AuthHandler {
	return &AuthHandler{
		Users:    users,
		Identity: identity,
	}
}

// RegisterRoutes mounts the auth endpoints. limit guards the credential
// endpoints against brute force.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	rg.POST("/register", limit, h.Register)
	rg.POST("/login", limit, h.Login)
	rg.POST("/logout", h.Logout)
}

// Register handles user registration requests. New accounts are patients.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Register binding error: %v", err)
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		customLog.Warnf("Failed to hash password during registration for email %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	user, err := h.Users.Create(c.Request.Context(), req.Email, req.FullName, hashedPassword, domain.RolePatient)
	if err != nil {
		customLog.Warnf("Failed to create user %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	customLog.Printf("Successfully registered user %d", user.ID)
	c.JSON(http.StatusCreated, user)
}

// Login checks credentials, stores the identity in the session and issues a
// token for cookie-less clients.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Login binding error: %v", err)
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	user, err := h.Users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Unknown accounts look the same as wrong passwords.
			err = storage.ErrInvalidCredentials
		}
		customLog.Warnf("Login failed for email %s: %v", req.Email, err)
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		_ = c.Error(err)
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		customLog.Warnf("Login attempt failed for user %d: invalid password", user.ID)
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		_ = c.Error(storage.ErrInvalidCredentials)
		return
	}

	token, err := h.Identity.LoginUser(c, user)
	if err != nil {
		customLog.Warnf("Failed to log in user %d: %v", user.ID, err)
		_ = c.Error(err)
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, models.LoginResponse{Message: "Logged in successfully", Token: token, User: user})
}

// Logout clears the session. It succeeds for anonymous callers too.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Identity.LogoutUser(c); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out"})
}
