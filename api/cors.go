package api

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/meditech/meditech-backend/api/middleware"
)

// corsMiddleware adds CORS headers for allowed origins. Requests from any
// other origin are served without them instead of being refused, so the
// browser enforces the policy and non-browser clients are unaffected.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := originMatcher(origins)
	handler := cors.New(corsConfig(origins))
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && !allowed(origin) {
			c.Next()
			return
		}
		handler(c)
	}
}

// corsConfig allows the configured origins on every path with credentials.
// The request origin is always reflected, so "*" still works with cookies.
func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOriginFunc:  originMatcher(origins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// originMatcher accepts an origin when an entry is "*", equals the origin
// (scheme://host[:port]), or is a bare host matching the origin's host.
func originMatcher(allowed []string) func(string) bool {
	exact := make(map[string]bool, len(allowed))
	hosts := make(map[string]bool, len(allowed))
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimRight(strings.TrimSpace(entry), "/"))
		switch {
		case entry == "*":
			return func(string) bool { return true }
		case strings.Contains(entry, "://"):
			exact[entry] = true
		case entry != "":
			hosts[entry] = true
		}
	}

	return func(origin string) bool {
		origin = strings.ToLower(origin)
		if exact[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return hosts[u.Host] || hosts[u.Hostname()]
	}
}
