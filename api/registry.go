// api/registry.go
package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/api/handlers"
	"github.com/meditech/meditech-backend/api/middleware"
	"github.com/meditech/meditech-backend/internal/core"
	"github.com/meditech/meditech-backend/internal/domain"
	"github.com/meditech/meditech-backend/internal/storage"
)

// RegisterFunc attaches a group's routes. It receives the application
// context explicitly instead of reaching for package globals.
type RegisterFunc func(rg *gin.RouterGroup, app *AppContext)

// RouteGroup is one named set of routes mounted under Prefix.
type RouteGroup struct {
	Name   string
	Prefix string
	// Optional groups with a nil Register are skipped with a warning instead
	// of failing assembly.
	Optional bool
	Register RegisterFunc
}

// MountResult records what happened to one group during assembly.
type MountResult struct {
	Name    string `json:"name"`
	Prefix  string `json:"prefix"`
	Mounted bool   `json:"mounted"`
	Reason  string `json:"reason,omitempty"`
}

// RouteMountError reports a route group that could not be mounted.
type RouteMountError struct {
	Group  string
	Prefix string
	Reason string
}

func (e *RouteMountError) Error() string {
	return fmt.Sprintf("route group %q at %q: %s", e.Group, e.Prefix, e.Reason)
}

// Paths served by the diagnostics routes; no group may claim them.
var reservedPrefixes = map[string]bool{
	"/health":   true,
	"/__routes": true,
	"/metrics":  true,
}

// DefaultRouteGroups returns the nine groups the application serves.
func DefaultRouteGroups() []RouteGroup {
	return []RouteGroup{
		{Name: "appointments", Prefix: "/appointments", Optional: true, Register: recordGroup[domain.Appointment, *domain.Appointment]},
		{Name: "auth", Prefix: "/auth", Register: func(rg *gin.RouterGroup, app *AppContext) {
			limit := middleware.RateLimitMiddleware(app.AuthLimiter)
			handlers.NewAuthHandler(app.Users, app.Identity).RegisterRoutes(rg, limit)
		}},
		{Name: "doctors", Prefix: "/doctors", Optional: true, Register: recordGroup[domain.Doctor, *domain.Doctor]},
		{Name: "hospitals", Prefix: "/hospitals", Optional: true, Register: recordGroup[domain.Hospital, *domain.Hospital]},
		{Name: "insurances", Prefix: "/insurances", Optional: true, Register: recordGroup[domain.Insurance, *domain.Insurance]},
		{Name: "subscriptions", Prefix: "/subscriptions", Optional: true, Register: recordGroup[domain.Subscription, *domain.Subscription]},
		{Name: "medications", Prefix: "/medications", Optional: true, Register: recordGroup[domain.Medication, *domain.Medication]},
		{Name: "examinations", Prefix: "/examinations", Optional: true, Register: recordGroup[domain.Examination, *domain.Examination]},
		{Name: "users", Prefix: "/users", Register: func(rg *gin.RouterGroup, app *AppContext) {
			handlers.NewUserHandler(app.Users, app.Identity).RegisterRoutes(rg)
		}},
	}
}

func recordGroup[T any, PT storage.RecordPtr[T]](rg *gin.RouterGroup, app *AppContext) {
	repo := storage.NewRepository[T, PT](app.DB)
	handlers.NewRecordHandler(repo, app.Identity).RegisterRoutes(rg)
}

// validateGroups checks the whole registry before anything is mounted, so a
// bad registry never leaves a half-built engine behind.
func validateGroups(groups []RouteGroup) error {
	names := make(map[string]bool, len(groups))
	prefixes := make(map[string]string, len(groups))

	for _, g := range groups {
		switch {
		case strings.TrimSpace(g.Name) == "":
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: "group name is empty"}
		case !core.IsValidPrefix(g.Prefix):
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: "prefix must be a single lowercase path segment such as /doctors"}
		case reservedPrefixes[g.Prefix]:
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: "prefix is reserved for diagnostics"}
		case names[g.Name]:
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: "duplicate group name"}
		case prefixes[g.Prefix] != "":
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: fmt.Sprintf("prefix already used by group %q", prefixes[g.Prefix])}
		case g.Register == nil && !g.Optional:
			return &RouteMountError{Group: g.Name, Prefix: g.Prefix, Reason: "required group has no handlers"}
		}
		names[g.Name] = true
		prefixes[g.Prefix] = g.Name
	}
	return nil
}

// mountGroups validates and then mounts every group in order. Each group
// resolves the caller's identity before its own handlers run.
func mountGroups(engine *gin.Engine, app *AppContext, groups []RouteGroup) ([]MountResult, error) {
	if err := validateGroups(groups); err != nil {
		return nil, err
	}

	results := make([]MountResult, 0, len(groups))
	for _, g := range groups {
		if g.Register == nil {
			app.Log.Warnf("Route group %q (%s) has no handlers; skipping", g.Name, g.Prefix)
			results = append(results, MountResult{Name: g.Name, Prefix: g.Prefix, Reason: "no handlers registered"})
			continue
		}

		rg := engine.Group(g.Prefix, app.Identity.Middleware())
		g.Register(rg, app)
		app.Log.Printf("Mounted route group %q at %s", g.Name, g.Prefix)
		results = append(results, MountResult{Name: g.Name, Prefix: g.Prefix, Mounted: true})
	}
	return results, nil
}
