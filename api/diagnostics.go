package api

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meditech/meditech-backend/config"
)

// RouteInfo describes one registered path and the methods it answers.
type RouteInfo struct {
	Rule    string   `json:"rule"`
	Methods []string `json:"methods"`
}

// RouteTable lists the engine's routes, one entry per path, sorted by path.
// HEAD and OPTIONS are left out.
func RouteTable(engine *gin.Engine) []RouteInfo {
	byPath := map[string][]string{}
	for _, r := range engine.Routes() {
		if r.Method == http.MethodHead || r.Method == http.MethodOptions {
			continue
		}
		if !slices.Contains(byPath[r.Path], r.Method) {
			byPath[r.Path] = append(byPath[r.Path], r.Method)
		}
	}

	table := make([]RouteInfo, 0, len(byPath))
	for path, methods := range byPath {
		slices.Sort(methods)
		table = append(table, RouteInfo{Rule: path, Methods: methods})
	}
	slices.SortFunc(table, func(a, b RouteInfo) int { return cmp.Compare(a.Rule, b.Rule) })
	return table
}

// registerDiagnostics adds /health, and /__routes and /metrics when enabled.
// These sit outside every route group and never touch the database.
func registerDiagnostics(engine *gin.Engine, cfg *config.Config) {
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.RoutesDebug {
		engine.GET("/__routes", func(c *gin.Context) {
			c.JSON(http.StatusOK, RouteTable(engine))
		})
	}

	if cfg.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
