// api/session.go
package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	gsessions "github.com/gorilla/sessions"

	"github.com/meditech/meditech-backend/config"
)

// SessionCookieName is the cookie carrying the signed session id.
const SessionCookieName = "session"

const (
	// gorilla names every filesystem session file with this prefix.
	sessionFilePrefix  = "session_"
	sessionSweepPeriod = time.Hour
)

// sessionOptions makes every session a browser-session cookie: no Max-Age,
// so it ends when the browser closes.
func sessionOptions(cfg *config.Config) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

// newSessionStore builds the store selected by cfg.SessionType. Session ids
// and cookie payloads are signed with cfg.SecretKey.
func newSessionStore(cfg *config.Config) (sessions.Store, error) {
	key := []byte(cfg.SecretKey)

	var store sessions.Store
	switch cfg.SessionType {
	case config.SessionFilesystem:
		if err := os.MkdirAll(cfg.SessionDirectory, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory %s: %w", cfg.SessionDirectory, err)
		}
		fs := gsessions.NewFilesystemStore(cfg.SessionDirectory, key)
		fs.MaxLength(0)
		fsStore := &filesystemStore{FilesystemStore: fs, dir: cfg.SessionDirectory, lifetime: cfg.JWTExpiration, now: time.Now}
		fsStore.sweep()
		store = fsStore
	case config.SessionCookie:
		store = cookie.NewStore(key)
	case config.SessionMemory:
		store = memstore.NewStore(key)
	default:
		return nil, &config.ConfigurationError{Key: "SESSION_TYPE", Reason: fmt.Sprintf("unsupported session type %q", cfg.SessionType)}
	}

	store.Options(sessionOptions(cfg))
	return store, nil
}

// filesystemStore adapts gorilla's FilesystemStore to gin-contrib/sessions,
// the same way gin-contrib wraps gorilla's CookieStore.
type filesystemStore struct {
	*gsessions.FilesystemStore
	dir      string
	lifetime time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

func (s *filesystemStore) Options(options sessions.Options) {
	s.FilesystemStore.Options = options.ToGorillaOptions()
}

// Save writes the session file. gorilla treats MaxAge 0 as "delete", so the
// file is saved with the server-side lifetime and the cookie is then reissued
// without Max-Age or Expires.
func (s *filesystemStore) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	s.maybeSweep()
	if session.Options == nil || session.Options.MaxAge != 0 {
		return s.FilesystemStore.Save(r, w, session)
	}

	opts := *session.Options
	opts.MaxAge = int(s.lifetime / time.Second)
	original := session.Options
	session.Options = &opts
	defer func() { session.Options = original }()

	capture := &cookieCapture{ResponseWriter: w, header: http.Header{}}
	if err := s.FilesystemStore.Save(r, capture, session); err != nil {
		return err
	}
	for _, line := range capture.header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			return fmt.Errorf("failed to reissue session cookie: %w", err)
		}
		c.MaxAge = 0
		c.Expires = time.Time{}
		http.SetCookie(w, c)
	}
	return nil
}

func (s *filesystemStore) maybeSweep() {
	s.mu.Lock()
	due := s.now().Sub(s.lastSweep) >= sessionSweepPeriod
	s.mu.Unlock()
	if due {
		s.sweep()
	}
}

// sweep removes session files not written to within the session lifetime.
// gorilla never deletes them on its own.
func (s *filesystemStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastSweep = now

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		customLog.Warnf("Session: Failed to list %s: %v", s.dir, err)
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), sessionFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < s.lifetime {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			customLog.Warnf("Session: Failed to remove expired session %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		customLog.Printf("Session: Removed %d expired session files", removed)
	}
}

// cookieCapture collects headers written by a store so they can be rewritten.
type cookieCapture struct {
	http.ResponseWriter
	header http.Header
}

func (c *cookieCapture) Header() http.Header { return c.header }
