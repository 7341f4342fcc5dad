package metrics

import (
	"context"
	"time"

	"github.com/go-authgate/oauth2core/internal/cache"
	"github.com/go-authgate/oauth2core/internal/store"
)

// metricsStore defines the store operations CacheWrapper needs, so
// tests can substitute a mock instead of a full store.Store.
type metricsStore interface {
	CountActiveGrants() (int64, error)
}

// CacheWrapper provides a read-through cache for the active-grants
// gauge, so a periodic metrics refresh does not hit the database on
// every tick. Uses the cache's GetWithFetch for the cache-aside
// pattern.
type CacheWrapper struct {
	store metricsStore
	cache cache.CacheWithFetch[int64]
}

// NewCacheWrapper creates a new cache wrapper for metrics.
func NewCacheWrapper(store *store.Store, c cache.CacheWithFetch[int64]) *CacheWrapper {
	return &CacheWrapper{store: store, cache: c}
}

// GetActiveGrantsCount retrieves the count of unexpired grants,
// through the cache-aside pattern.
func (m *CacheWrapper) GetActiveGrantsCount(ctx context.Context, ttl time.Duration) (int64, error) {
	return m.cache.GetWithFetch(
		ctx,
		"grants:active",
		ttl,
		func(ctx context.Context, key string) (int64, error) {
			return m.store.CountActiveGrants()
		},
	)
}
