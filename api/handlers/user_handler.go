// api/handlers/user_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/api/middleware"
	"github.com/meditech/meditech-backend/api/models"
	"github.com/meditech/meditech-backend/internal/auth"
	"github.com/meditech/meditech-backend/internal/core"
	"github.com/meditech/meditech-backend/internal/storage"
)

// UserHandler serves profile and account administration endpoints.
type UserHandler struct {
	Users    *storage.UserRepository
	Identity *middleware.IdentityManager
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *storage.UserRepository, identity *middleware.IdentityManager) *UserHandler {
	return &UserHandler{Users: users, Identity: identity}
}

// RegisterRoutes mounts the user endpoints; every one requires a login.
func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(h.Identity.LoginRequired())
	rg.GET("/me", h.Me)
	rg.PATCH("/me", h.UpdateMe)
	rg.GET("", h.Identity.AdminRequired(), h.List)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id/role", h.Identity.AdminRequired(), h.SetRole)
}

// Me returns the logged-in user.
func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

// UpdateMe changes the logged-in user's profile.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	current := middleware.CurrentUser(c)
	if err := h.Users.UpdateFullName(c.Request.Context(), current.ID, req.FullName); err != nil {
		_ = c.Error(err)
		return
	}
	h.respondWithUser(c, current.ID)
}

// List returns a page of users. Admin only.
func (h *UserHandler) List(c *gin.Context) {
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	users, err := h.Users.List(c.Request.Context(), opts.Limit, opts.Offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get returns one user. Users may read themselves; admins may read anyone.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	current := middleware.CurrentUser(c)
	if current.ID != id && !current.IsAdmin() {
		_ = c.Error(auth.ErrForbidden)
		return
	}
	h.respondWithUser(c, id)
}

// SetRole assigns a role to a user. Admin only.
func (h *UserHandler) SetRole(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req models.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	if err := h.Users.SetRole(c.Request.Context(), id, req.Role); err != nil {
		_ = c.Error(err)
		return
	}
	customLog.Printf("Handler: User %d set role of user %d to %s", middleware.CurrentUser(c).ID, id, req.Role)
	h.respondWithUser(c, id)
}

func (h *UserHandler) respondWithUser(c *gin.Context, id int64) {
	user, err := h.Users.FindByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}
