// api/handlers/record_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/api/middleware"
	"github.com/meditech/meditech-backend/internal/core"
	"github.com/meditech/meditech-backend/internal/domain"
	"github.com/meditech/meditech-backend/internal/storage"
)

// RecordHandler serves CRUD endpoints for one record table.
//
// Shared catalog tables (doctors, hospitals, ...) are readable by any
// logged-in user and writable by admins. Owned tables (appointments, ...)
// are scoped to the current user; admins see every row.
type RecordHandler[T any, PT storage.RecordPtr[T]] struct {
	Repo     *storage.Repository[T, PT]
	Identity *middleware.IdentityManager
}

// NewRecordHandler creates a RecordHandler over repo.
func NewRecordHandler[T any, PT storage.RecordPtr[T]](repo *storage.Repository[T, PT], identity *middleware.IdentityManager) *RecordHandler[T, PT] {
	return &RecordHandler[T, PT]{Repo: repo, Identity: identity}
}

// RegisterRoutes mounts list, get, create, update and delete on rg.
func (h *RecordHandler[T, PT]) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(h.Identity.LoginRequired())

	var write []gin.HandlerFunc
	if !h.Repo.Owned() {
		write = append(write, h.Identity.AdminRequired())
	}

	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", append(write, h.Create)...)
	rg.PUT("/:id", append(write, h.Update)...)
	rg.DELETE("/:id", append(write, h.Delete)...)
}

// List handles GET with limit, offset, sort and order query parameters.
func (h *RecordHandler[T, PT]) List(c *gin.Context) {
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	records, err := h.Repo.List(c.Request.Context(), opts, h.scope(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// Get handles retrieving a single record by id.
func (h *RecordHandler[T, PT]) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	record, err := h.Repo.Get(c.Request.Context(), id, h.scope(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Create handles inserting a new record. Owned records always belong to the caller.
func (h *RecordHandler[T, PT]) Create(c *gin.Context) {
	record := PT(new(T))
	if err := c.ShouldBindJSON(record); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}
	h.claim(c, record)

	created, err := h.Repo.Create(c.Request.Context(), record)
	if err != nil {
		_ = c.Error(err)
		return
	}
	customLog.Printf("Handler: User %d created %s record %d", middleware.CurrentUser(c).ID, h.Repo.Table(), PT(created).GetID())
	c.JSON(http.StatusCreated, created)
}

// Update handles replacing the writable fields of a record.
func (h *RecordHandler[T, PT]) Update(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	record := PT(new(T))
	if err := c.ShouldBindJSON(record); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}
	h.claim(c, record)

	updated, err := h.Repo.Update(c.Request.Context(), id, record, h.scope(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles deleting a specific record by id.
func (h *RecordHandler[T, PT]) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Repo.Delete(c.Request.Context(), id, h.scope(c)); err != nil {
		_ = c.Error(err)
		return
	}
	customLog.Printf("Handler: User %d deleted %s record %d", middleware.CurrentUser(c).ID, h.Repo.Table(), id)
	c.Status(http.StatusNoContent)
}

// scope returns the owner filter for the caller: nil for admins and for
// shared tables.
func (h *RecordHandler[T, PT]) scope(c *gin.Context) *int64 {
	user := middleware.CurrentUser(c)
	if !h.Repo.Owned() || user.IsAdmin() {
		return nil
	}
	return &user.ID
}

// claim stamps the caller as owner of a new record.
func (h *RecordHandler[T, PT]) claim(c *gin.Context, record PT) {
	if owned, ok := any(record).(domain.Owned); ok {
		owned.SetOwner(middleware.CurrentUser(c).ID)
	}
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid id %q", core.ErrBadRequest, c.Param("id"))
	}
	return id, nil
}
