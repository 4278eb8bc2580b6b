package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditech/meditech-backend/config"
	"github.com/meditech/meditech-backend/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		SecretKey:        "router-test-secret",
		DatabaseURI:      "sqlite:///" + filepath.Join(dir, "app.db"),
		SessionType:      config.SessionCookie,
		CORSOrigins:      []string{"*"},
		UploadDirectory:  filepath.Join(dir, "uploads"),
		SessionDirectory: filepath.Join(dir, "sessions"),
		Host:             "127.0.0.1",
		Port:             5000,
		Env:              "test",
		RoutesDebug:      true,
		JWTExpiration:    time.Hour,
		DBMaxConns:       1,
		MetricsEnabled:   true,
		AuthRateLimit:    100,
	}
}

func testDB(t *testing.T, cfg *config.Config) *sqlx.DB {
	t.Helper()
	db, err := storage.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAssembleRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SecretKey = ""

	app, err := Assemble(cfg, nil)
	assert.Nil(t, app)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	app, err = Assemble(nil, nil)
	assert.Nil(t, app)
	require.ErrorAs(t, err, &cfgErr)
}

func TestAssembleMountsDefaultGroups(t *testing.T) {
	cfg := testConfig(t)
	log, _ := quietLogger()

	app, err := Assemble(cfg, testDB(t, cfg), WithLogger(log))
	require.NoError(t, err)
	require.Len(t, app.Mounted, 9)
	for _, m := range app.Mounted {
		assert.True(t, m.Mounted, "group %s should be mounted", m.Name)
	}
	assert.Same(t, cfg, app.Context.Config)

	prefixes := map[string]bool{}
	for _, r := range RouteTable(app.Engine) {
		if parts := strings.SplitN(strings.TrimPrefix(r.Rule, "/"), "/", 2); len(parts) > 0 {
			prefixes["/"+parts[0]] = true
		}
	}
	for _, p := range []string{"/appointments", "/auth", "/doctors", "/hospitals", "/insurances",
		"/subscriptions", "/medications", "/examinations", "/users", "/health", "/__routes", "/metrics"} {
		assert.True(t, prefixes[p], "expected routes under %s", p)
	}
}

func TestHealth(t *testing.T) {
	cfg := testConfig(t)
	log, _ := quietLogger()
	// No database at all: /health must not need one.
	app, err := Assemble(cfg, nil, WithLogger(log))
	require.NoError(t, err)

	w := get(app, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	// A broken bearer token does not affect diagnostics.
	w = get(app, "/health", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnlistedOriginIsServedWithoutCORSHeaders(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSOrigins = []string{"https://a.com"}
	log, _ := quietLogger()
	app, err := Assemble(cfg, nil, WithLogger(log))
	require.NoError(t, err)

	w := get(app, "/health", map[string]string{"Origin": "https://evil.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = get(app, "/doctors", map[string]string{"Origin": "https://evil.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "the route still answers; only the CORS headers are missing")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = get(app, "/health", map[string]string{"Origin": "https://a.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://a.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicIsRecoveredAndLogged(t *testing.T) {
	cfg := testConfig(t)
	log, hook := quietLogger()
	groups := []RouteGroup{{Name: "faulty", Prefix: "/faulty", Register: func(rg *gin.RouterGroup, _ *AppContext) {
		rg.GET("", func(c *gin.Context) { panic("handler exploded") })
	}}}
	app, err := Assemble(cfg, nil, WithLogger(log), WithRouteGroups(groups))
	require.NoError(t, err)

	w := get(app, "/faulty", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && strings.Contains(entry.Message, "handler exploded") {
			logged = true
		}
	}
	assert.True(t, logged, "expected the panic to be logged")

	assert.Equal(t, http.StatusOK, get(app, "/health", nil).Code, "the engine keeps serving")
}

func TestRoutesDump(t *testing.T) {
	cfg := testConfig(t)
	log, _ := quietLogger()
	app, err := Assemble(cfg, nil, WithLogger(log))
	require.NoError(t, err)

	w := get(app, "/__routes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var table []RouteInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	require.NotEmpty(t, table)

	for i, entry := range table {
		if i > 0 {
			assert.Less(t, table[i-1].Rule, entry.Rule, "entries sorted by rule, one per path")
		}
		assert.NotContains(t, entry.Methods, http.MethodHead)
		assert.NotContains(t, entry.Methods, http.MethodOptions)
		assert.IsNonDecreasing(t, entry.Methods)
	}

	byRule := map[string][]string{}
	for _, entry := range table {
		byRule[entry.Rule] = entry.Methods
	}
	assert.Equal(t, []string{"GET"}, byRule["/health"])
	assert.Equal(t, []string{"DELETE", "GET", "PUT"}, byRule["/doctors/:id"])
	assert.Equal(t, []string{"GET", "POST"}, byRule["/appointments"])
}

func TestRoutesDumpDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RoutesDebug = false
	cfg.MetricsEnabled = false
	log, _ := quietLogger()
	app, err := Assemble(cfg, nil, WithLogger(log))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, get(app, "/__routes", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(app, "/metrics", nil).Code)
}

func TestRouteRegistryErrors(t *testing.T) {
	noop := func(*gin.RouterGroup, *AppContext) {}

	testCases := []struct {
		name   string
		groups []RouteGroup
		reason string
	}{
		{"duplicate prefix", []RouteGroup{
			{Name: "a", Prefix: "/things", Register: noop},
			{Name: "b", Prefix: "/things", Register: noop},
		}, "prefix already used"},
		{"duplicate name", []RouteGroup{
			{Name: "a", Prefix: "/one", Register: noop},
			{Name: "a", Prefix: "/two", Register: noop},
		}, "duplicate group name"},
		{"invalid prefix", []RouteGroup{{Name: "a", Prefix: "things", Register: noop}}, "single lowercase path segment"},
		{"reserved prefix", []RouteGroup{{Name: "a", Prefix: "/health", Register: noop}}, "reserved"},
		{"required without handlers", []RouteGroup{{Name: "auth", Prefix: "/auth"}}, "no handlers"},
		{"empty name", []RouteGroup{{Prefix: "/x", Register: noop}}, "name is empty"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, _ := quietLogger()
			app, err := Assemble(testConfig(t), nil, WithLogger(log), WithRouteGroups(tc.groups))
			assert.Nil(t, app)

			var mountErr *RouteMountError
			require.True(t, errors.As(err, &mountErr), "got %v", err)
			assert.Contains(t, mountErr.Reason, tc.reason)
		})
	}
}

func TestOptionalGroupWithoutHandlersIsSkipped(t *testing.T) {
	log, hook := quietLogger()
	groups := []RouteGroup{
		{Name: "health-checks", Prefix: "/checks", Register: func(rg *gin.RouterGroup, _ *AppContext) {
			rg.GET("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		}},
		{Name: "reports", Prefix: "/reports", Optional: true},
	}

	app, err := Assemble(testConfig(t), nil, WithLogger(log), WithRouteGroups(groups))
	require.NoError(t, err)

	require.Len(t, app.Mounted, 2)
	assert.True(t, app.Mounted[0].Mounted)
	assert.False(t, app.Mounted[1].Mounted)
	assert.Equal(t, "reports", app.Mounted[1].Name)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "reports") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning naming the skipped group")

	assert.Equal(t, http.StatusNoContent, get(app, "/checks", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(app, "/reports", nil).Code)
}

func TestCORS(t *testing.T) {
	testCases := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"wildcard reflects any origin", []string{"*"}, "http://evil.example", true},
		{"exact origin", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"bare host", []string{"a.com", "b.com"}, "http://b.com", true},
		{"bare host with port", []string{"localhost:3000"}, "http://localhost:3000", true},
		{"unlisted origin", []string{"a.com"}, "http://c.com", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.CORSOrigins = tc.origins
			log, _ := quietLogger()
			app, err := Assemble(cfg, nil, WithLogger(log))
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodOptions, "/doctors", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, req)

			if tc.allowed {
				assert.Equal(t, tc.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
				assert.NotEqual(t, http.StatusForbidden, w.Code)
			}
		})
	}
}

func TestSessionStores(t *testing.T) {
	for _, kind := range []string{config.SessionFilesystem, config.SessionCookie, config.SessionMemory} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.SessionType = kind
			store, err := newSessionStore(cfg)
			require.NoError(t, err)
			require.NotNil(t, store)

			if kind == config.SessionFilesystem {
				info, err := os.Stat(cfg.SessionDirectory)
				require.NoError(t, err)
				assert.True(t, info.IsDir())
			}
		})
	}

	cfg := testConfig(t)
	cfg.SessionType = "redis"
	_, err := newSessionStore(cfg)
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestFilesystemSessionIsBrowserSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionType = config.SessionFilesystem
	log, _ := quietLogger()
	groups := []RouteGroup{{Name: "visits", Prefix: "/visits", Register: func(rg *gin.RouterGroup, _ *AppContext) {
		rg.POST("", func(c *gin.Context) {
			s := sessions.Default(c)
			s.Set("seen", "yes")
			require.NoError(t, s.Save())
			c.Status(http.StatusNoContent)
		})
		rg.GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "%v", sessions.Default(c).Get("seen"))
		})
	}}}
	app, err := Assemble(cfg, nil, WithLogger(log), WithRouteGroups(groups))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/visits", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Zero(t, cookies[0].MaxAge)
	assert.True(t, cookies[0].Expires.IsZero())
	assert.True(t, cookies[0].HttpOnly)

	files, err := os.ReadDir(cfg.SessionDirectory)
	require.NoError(t, err)
	assert.Len(t, files, 1, "session data lives on disk")

	req := httptest.NewRequest(http.MethodGet, "/visits", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	app.ServeHTTP(w, req)
	assert.Equal(t, "yes", w.Body.String())
}

func TestOriginMatcher(t *testing.T) {
	match := originMatcher([]string{" https://Admin.Example.com/ ", "a.com", ""})
	assert.True(t, match("https://admin.example.com"))
	assert.True(t, match("http://a.com"))
	assert.True(t, match("https://a.com:8443"))
	assert.False(t, match("https://b.com"))
	assert.False(t, match("not a url"))
}

func TestFilesystemSessionSweep(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionType = config.SessionFilesystem
	require.NoError(t, os.MkdirAll(cfg.SessionDirectory, 0o700))

	expired := filepath.Join(cfg.SessionDirectory, "session_EXPIRED")
	require.NoError(t, os.WriteFile(expired, []byte("x"), 0o600))
	old := time.Now().Add(-2 * cfg.JWTExpiration)
	require.NoError(t, os.Chtimes(expired, old, old))

	store, err := newSessionStore(cfg)
	require.NoError(t, err)
	_, err = os.Stat(expired)
	assert.True(t, os.IsNotExist(err), "expired sessions are removed at startup")

	fs := store.(*filesystemStore)
	now := time.Now()
	fs.now = func() time.Time { return now }

	live := filepath.Join(cfg.SessionDirectory, "session_LIVE")
	require.NoError(t, os.WriteFile(live, []byte("x"), 0o600))
	other := filepath.Join(cfg.SessionDirectory, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(other, old, old))

	// Past the lifetime, the next save sweeps the live file as well.
	now = now.Add(cfg.JWTExpiration + sessionSweepPeriod)
	fs.maybeSweep()
	_, err = os.Stat(live)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err, "only session files are touched")

	// A second call inside the period does nothing.
	require.NoError(t, os.WriteFile(live, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(live, old, old))
	fs.maybeSweep()
	_, err = os.Stat(live)
	assert.NoError(t, err)
}
