// api/models/auth_models.go
package models

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/meditech/meditech-backend/internal/domain"
)

// --- Auth Request/Response Structs ---

// RegisterRequest defines the structure for the registration request body
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"max=120"`
}

// LoginRequest defines the structure for the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login. The session cookie is set
// alongside it; Token serves clients that cannot hold cookies.
type LoginResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
}

// UpdateProfileRequest carries the fields a user may change about themselves.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required,max=120"`
}

// RoleRequest assigns a role to a user.
type RoleRequest struct {
	Role string `json:"role" binding:"required,oneof=patient doctor admin"`
}

// MessageResponse is the body of endpoints that only report an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- JWT Claims ---

// CustomClaims includes standard claims plus the user's id and role
type CustomClaims struct {
	UserID string `json:"userID"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
