package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/meditech/meditech-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

const (
	// DefaultSecretKey signs sessions when SECRET_KEY is unset. Never deploy with it.
	DefaultSecretKey = "change-me"
	// FallbackDatabaseURI is used outside strict mode when no URL is configured.
	FallbackDatabaseURI = "sqlite:///meditech.db"

	SessionFilesystem = "filesystem"
	SessionCookie     = "cookie"
	SessionMemory     = "memory"

	uploadFolderName  = "uploads"
	sessionFolderName = "flask_session"
)

// ConfigurationError reports a missing or invalid configuration value.
// It is fatal: no server is constructed once it is returned.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config holds the resolved application configuration. It is built once per
// process and never mutated afterwards.
type Config struct {
	SecretKey         string   `validate:"required"`
	DatabaseURI       string   `validate:"required"`
	SessionType       string   `validate:"oneof=filesystem cookie memory"`
	CORSOrigins       []string `validate:"min=1,dive,required"`
	UploadDirectory   string   `validate:"required"`
	SessionDirectory  string
	Host              string
	Port              int `validate:"min=1,max=65535"`
	Env               string
	StrictDatabaseURL bool
	RoutesDebug       bool
	JWTExpiration     time.Duration `validate:"gt=0"`
	DBMaxConns        int           `validate:"min=1"`
	MetricsEnabled    bool
	AuthRateLimit     int `validate:"min=1"`
}

// environment mirrors the raw variables; Resolve derives Config from it.
type environment struct {
	SecretKey          string `env:"SECRET_KEY" envDefault:"change-me"`
	SQLAlchemyURI      string `env:"SQLALCHEMY_DATABASE_URI"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RequireDatabaseURL bool   `env:"DATABASE_URL_REQUIRED"`
	SessionType        string `env:"SESSION_TYPE" envDefault:"filesystem"`
	SessionDir         string `env:"SESSION_FILE_DIR"`
	FrontendOrigin     string `env:"FRONTEND_ORIGIN"`
	Host               string `env:"HOST" envDefault:"0.0.0.0"`
	Port               int    `env:"PORT" envDefault:"5000"`
	AppEnv             string `env:"APP_ENV" envDefault:"development"`
	RoutesDebug        string `env:"ROUTES_DEBUG"`
	JWTExpirationHours string `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
	DBMaxConns         int    `env:"DB_MAX_CONNS" envDefault:"10"`
	MetricsEnabled     bool   `env:"METRICS_ENABLED" envDefault:"true"`
	AuthRateLimit      int    `env:"AUTH_RATE_LIMIT" envDefault:"10"`
}

type resolveOptions struct {
	strict     bool
	workingDir string
}

// Option adjusts how Resolve behaves.
type Option func(*resolveOptions)

// WithStrictDatabaseURL makes a missing database URL fatal regardless of APP_ENV.
func WithStrictDatabaseURL() Option {
	return func(o *resolveOptions) { o.strict = true }
}

// WithWorkingDir overrides the directory uploads and sessions are resolved against.
func WithWorkingDir(dir string) Option {
	return func(o *resolveOptions) { o.workingDir = dir }
}

// LoadConfig loads configuration from the process environment.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig(opts ...Option) (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	cfg, err := Resolve(EnvironMap(os.Environ()), opts...)
	if err != nil {
		return nil, err
	}

	customLog.Printf("Configuration loaded successfully. Env: %s, Port: %d, Session: %s", cfg.Env, cfg.Port, cfg.SessionType)
	return cfg, nil
}

// Resolve builds a Config from the given variables only.
func Resolve(environ map[string]string, opts ...Option) (*Config, error) {
	o := resolveOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var raw environment
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return nil, &ConfigurationError{Key: "environment", Reason: "invalid value", Err: err}
	}

	production := raw.AppEnv == "production"
	strict := o.strict || raw.RequireDatabaseURL || production

	rawURI := raw.SQLAlchemyURI
	if rawURI == "" {
		rawURI = raw.DatabaseURL
	}
	if rawURI == "" {
		if strict {
			return nil, &ConfigurationError{Key: "SQLALCHEMY_DATABASE_URI", Reason: "missing required database connection string"}
		}
		customLog.Warnf("No database URL configured, falling back to %s", FallbackDatabaseURI)
		rawURI = FallbackDatabaseURI
	}

	wd := o.workingDir
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			return nil, &ConfigurationError{Key: "UPLOAD_FOLDER", Reason: "cannot determine working directory", Err: err}
		}
	}

	sessionDir := raw.SessionDir
	if sessionDir == "" {
		sessionDir = filepath.Join(wd, sessionFolderName)
	}

	routesDebug := !production
	if raw.RoutesDebug != "" {
		v, err := strconv.ParseBool(raw.RoutesDebug)
		if err != nil {
			return nil, &ConfigurationError{Key: "ROUTES_DEBUG", Reason: "must be a boolean", Err: err}
		}
		routesDebug = v
	}

	jwtExpHours, err := strconv.Atoi(raw.JWTExpirationHours)
	if err != nil || jwtExpHours <= 0 {
		customLog.Warnf("Invalid JWT_EXPIRATION_HOURS '%s'. Using default 24h. Error: %v", raw.JWTExpirationHours, err)
		jwtExpHours = 24
	}

	if raw.SecretKey == DefaultSecretKey {
		customLog.Warnln("WARNING: SECRET_KEY is set to the default placeholder!")
	}

	cfg := &Config{
		SecretKey:         raw.SecretKey,
		DatabaseURI:       NormalizeDatabaseURL(rawURI),
		SessionType:       raw.SessionType,
		CORSOrigins:       corsOrigins(environ, raw),
		UploadDirectory:   filepath.Join(wd, uploadFolderName),
		SessionDirectory:  sessionDir,
		Host:              raw.Host,
		Port:              raw.Port,
		Env:               raw.AppEnv,
		StrictDatabaseURL: strict,
		RoutesDebug:       routesDebug,
		JWTExpiration:     time.Hour * time.Duration(jwtExpHours),
		DBMaxConns:        raw.DBMaxConns,
		MetricsEnabled:    raw.MetricsEnabled,
		AuthRateLimit:     raw.AuthRateLimit,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required value is present and well-formed.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigurationError{Key: fe.Namespace(), Reason: fmt.Sprintf("failed '%s' check", fe.Tag()), Err: err}
	}
	return &ConfigurationError{Key: "config", Reason: "invalid", Err: err}
}

// IsProduction reports whether APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// corsOrigins prefers CORS_ORIGIN, then FRONTEND_ORIGIN, then "*".
func corsOrigins(environ map[string]string, raw environment) []string {
	value, set := environ["CORS_ORIGIN"]
	if !set {
		if raw.FrontendOrigin != "" {
			value = raw.FrontendOrigin
		} else {
			value = "*"
		}
	}
	return SplitOrigins(value)
}

// SplitOrigins splits a comma-separated origin list, trimming whitespace and
// dropping empty elements. An empty list yields ["*"].
func SplitOrigins(value string) []string {
	var origins []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// EnvironMap turns os.Environ-style "KEY=value" pairs into a map.
func EnvironMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
