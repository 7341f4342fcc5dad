package bootstrap

import (
	"fmt"
	"log"

	"github.com/go-authgate/oauth2core/internal/cache"
	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/metrics"
)

// initializeMetrics returns a Prometheus-backed Recorder, or a no-op
// implementation when metrics are disabled.
func initializeMetrics(cfg *config.Config) metrics.Recorder {
	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("prometheus metrics initialized")
	} else {
		log.Println("metrics disabled (using noop recorder)")
	}
	return recorder
}

// initializeMetricsCache builds the read-through cache backing the
// active-grants gauge. "memory" suits a single instance; "redis" uses
// rueidisaside so the gauge cache is shared across instances.
func initializeMetricsCache(cfg *config.Config) (cache.CacheWithFetch[int64], func() error, error) {
	switch cfg.MetricsCacheBackend {
	case "redis":
		c, err := cache.NewRueidisAsideCache(
			cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			"oauth2core:metrics:", cfg.MetricsCacheTTL,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: initialize redis-aside metrics cache: %w", err)
		}
		log.Printf("metrics cache: redis-aside (addr=%s, db=%d)", cfg.RedisAddr, cfg.RedisDB)
		return c, c.Close, nil
	default:
		c := cache.NewMemoryCache[int64]()
		log.Println("metrics cache: memory (single instance only)")
		return c, c.Close, nil
	}
}
