// api/middleware/identity.go
package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/internal/auth"
	"github.com/meditech/meditech-backend/internal/domain"
	"github.com/meditech/meditech-backend/internal/logger"
)

var customLog = logger.NewLogger()

const (
	// SessionUserKey holds the logged-in user's id inside the session.
	SessionUserKey = "_user_id"

	currentUserKey = "currentUser"
	tokenErrorKey  = "tokenError"
)

// UserLoader resolves a stored identifier to a user. It returns (nil, nil)
// when no such user exists.
type UserLoader func(ctx context.Context, id string) (*domain.User, error)

// IdentityManager tracks who is logged in. A request is identified either by
// the session cookie or by an "Authorization: Bearer" token.
type IdentityManager struct {
	loader     UserLoader
	secret     string
	expiration time.Duration
}

// NewIdentityManager creates an IdentityManager that signs tokens with secret.
func NewIdentityManager(loader UserLoader, secret string, expiration time.Duration) *IdentityManager {
	return &IdentityManager{loader: loader, secret: secret, expiration: expiration}
}

// Middleware resolves the current user for every request. A bearer token
// that fails validation leaves the request anonymous; the failure is kept so
// LoginRequired can report it.
func (m *IdentityManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string

		if header := c.GetHeader("Authorization"); header != "" {
			id, err := m.bearerIdentity(header)
			if err != nil {
				customLog.Printf("IdentityManager: Ignoring bearer token: %v", err)
				c.Set(tokenErrorKey, err)
			}
			userID = id
		}
		if userID == "" {
			if v, ok := sessions.Default(c).Get(SessionUserKey).(string); ok {
				userID = v
			}
		}

		if userID == "" {
			c.Next()
			return
		}

		user, err := m.loader(c.Request.Context(), userID)
		if err != nil {
			_ = c.Error(fmt.Errorf("failed to load user %s: %w", userID, err))
			c.Abort()
			return
		}
		if user == nil {
			customLog.Warnf("IdentityManager: Stale identity %q, treating request as anonymous", userID)
			m.forget(c)
		} else {
			c.Set(currentUserKey, user)
		}
		c.Next()
	}
}

func (m *IdentityManager) bearerIdentity(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: authorization header format must be Bearer {token}", auth.ErrTokenMalformed)
	}
	return auth.ValidateJWT(parts[1], m.secret)
}

// LoginRequired rejects anonymous requests with 401. When the request carried
// a bearer token that failed validation, that failure is the reported error.
func (m *IdentityManager) LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			_ = c.Error(anonymousError(c))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired rejects anonymous requests with 401 and non-admins with 403.
func (m *IdentityManager) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		switch {
		case user == nil:
			_ = c.Error(anonymousError(c))
		case !user.IsAdmin():
			_ = c.Error(auth.ErrForbidden)
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}

// LoginUser stores the user's identity in the session and returns a bearer
// token for clients that do not keep cookies.
func (m *IdentityManager) LoginUser(c *gin.Context, user *domain.User) (string, error) {
	id := strconv.FormatInt(user.ID, 10)

	session := sessions.Default(c)
	session.Set(SessionUserKey, id)
	if err := session.Save(); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	c.Set(currentUserKey, user)

	return auth.GenerateJWT(id, user.Role, m.secret, m.expiration)
}

// LogoutUser drops the identity from the session.
func (m *IdentityManager) LogoutUser(c *gin.Context) error {
	c.Set(currentUserKey, (*domain.User)(nil))
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (m *IdentityManager) forget(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(SessionUserKey) == nil {
		return
	}
	session.Delete(SessionUserKey)
	if err := session.Save(); err != nil {
		customLog.Warnf("IdentityManager: Failed to drop stale session identity: %v", err)
	}
}

func anonymousError(c *gin.Context) error {
	if err, ok := c.Get(tokenErrorKey); ok {
		if err, ok := err.(error); ok {
			return err
		}
	}
	return auth.ErrUnauthorized
}

// CurrentUser returns the user resolved for this request, or nil.
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
