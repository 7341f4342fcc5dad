package bootstrap

import (
	"log"
	"net/http"
	"os"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/middleware"
	"github.com/go-authgate/oauth2core/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter wires the core's two HTTP endpoints (C4 POST /authorize,
// C5 POST /token) plus the ambient health/metrics surface into a gin
// Engine. All other method/path combinations fall through to gin's
// default 404 (spec.md §6.2).
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder metrics.Recorder,
	tokenRateLimit gin.HandlerFunc,
) *gin.Engine {
	setupGinMode()
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", createHealthCheckHandler(db))

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// POST /authorize: the consent UI's sole collaborator. The
	// resource-owner id arrives pre-authenticated via PrincipalHeader
	// (spec.md §1, §6.1); this core never authenticates users itself.
	r.POST("/authorize", middleware.RequirePrincipal(), h.authorize.Authorize)

	// POST /token and its CORS preflight (spec.md §4.5, §6.2).
	tokenGroup := r.Group("/")
	tokenGroup.Use(middleware.TokenEndpointCORS(cfg.TokenEndpointAdditionalAllowedHeaders))
	tokenGroup.OPTIONS("/", h.token.OptionsPreflight)
	tokenGroup.POST("/token", tokenRateLimit, h.token.Token)

	logServerStartup(cfg)
	return r
}

func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
	}
}

func setupGinMode() {
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

func logServerStartup(cfg *config.Config) {
	log.Printf("oauth2core listening on %s (base url %s)", cfg.ServerAddr, cfg.BaseURL)
	log.Printf("pkce enforcement: %s, grant ttl: %s", cfg.EnforcePKCE, cfg.GrantTTL)
}
