package bootstrap

import (
	"log"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/middleware"

	"github.com/gin-gonic/gin"
)

// initializeRateLimiter builds the token endpoint's rate limiter, or
// a no-op pass-through when rate limiting is disabled.
func initializeRateLimiter(cfg *config.Config) (gin.HandlerFunc, error) {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }, nil
	}

	switch middleware.RateLimitStoreType(cfg.RateLimitStoreType) {
	case middleware.RateLimitStoreRedis:
		log.Printf("rate limiting enabled (store: redis, addr: %s)", cfg.RedisAddr)
		return middleware.NewRedisRateLimiter(
			cfg.RateLimitRequestsPerMinute,
			cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		)
	default:
		log.Println("rate limiting enabled (store: memory, single instance only)")
		return middleware.NewMemoryRateLimiter(cfg.RateLimitRequestsPerMinute)
	}
}
