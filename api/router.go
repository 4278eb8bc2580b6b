// api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/meditech/meditech-backend/api/middleware"
	"github.com/meditech/meditech-backend/config"
	"github.com/meditech/meditech-backend/internal/logger"
	"github.com/meditech/meditech-backend/internal/metrics"
	"github.com/meditech/meditech-backend/internal/storage"
)

var customLog = logger.NewLogger()

// AppContext is built once per App and handed to every route group.
type AppContext struct {
	Config      *config.Config
	DB          *sqlx.DB
	Users       *storage.UserRepository
	Identity    *middleware.IdentityManager
	AuthLimiter *middleware.RateLimiter
	Log         *logrus.Logger
}

// App is an assembled, ready-to-serve application.
type App struct {
	Engine  *gin.Engine
	Context *AppContext
	Mounted []MountResult
}

// ServeHTTP makes App an http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Engine.ServeHTTP(w, r)
}

type assembleOptions struct {
	groups []RouteGroup
	log    *logrus.Logger
}

// Option adjusts how Assemble builds the App.
type Option func(*assembleOptions)

// WithRouteGroups replaces DefaultRouteGroups.
func WithRouteGroups(groups []RouteGroup) Option {
	return func(o *assembleOptions) { o.groups = groups }
}

// WithLogger replaces the shared application logger.
func WithLogger(log *logrus.Logger) Option {
	return func(o *assembleOptions) { o.log = log }
}

// Assemble builds the web application from a resolved configuration and an
// open database pool. Nothing is mounted if the configuration is invalid or
// the route registry is malformed.
func Assemble(cfg *config.Config, db *sqlx.DB, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, &config.ConfigurationError{Key: "config", Reason: "configuration is nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := assembleOptions{groups: DefaultRouteGroups(), log: logger.NewLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	// Fail before any route exists.
	if err := validateGroups(o.groups); err != nil {
		return nil, err
	}
	store, err := newSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.CustomRecoveryWithWriter(o.log.Out, recoverPanic(o.log)))
	engine.Use(middleware.RequestLogger(o.log))
	engine.Use(corsMiddleware(cfg.CORSOrigins))
	engine.Use(sessions.Sessions(SessionCookieName, store))
	engine.Use(middleware.ErrorHandler())

	users := storage.NewUserRepository(db)
	appCtx := &AppContext{
		Config:      cfg,
		DB:          db,
		Users:       users,
		Identity:    middleware.NewIdentityManager(users.Lookup, cfg.SecretKey, cfg.JWTExpiration),
		AuthLimiter: middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute),
		Log:         o.log,
	}

	mounted, err := mountGroups(engine, appCtx, o.groups)
	if err != nil {
		return nil, err
	}
	registerDiagnostics(engine, cfg)

	count := 0
	for _, m := range mounted {
		if m.Mounted {
			count++
		}
	}
	metrics.MountedRouteGroups.Set(float64(count))
	o.log.Printf("Application assembled: %d of %d route groups mounted, session store %s, CORS origins %v",
		count, len(o.groups), cfg.SessionType, cfg.CORSOrigins)

	return &App{Engine: engine, Context: appCtx, Mounted: mounted}, nil
}

// recoverPanic logs a recovered handler panic and answers 500.
func recoverPanic(log *logrus.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Errorf("Recovered from panic: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected internal server error occurred."})
	}
}
