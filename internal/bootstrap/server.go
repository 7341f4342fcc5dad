package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/services"
	"github.com/go-authgate/oauth2core/internal/store"

	"github.com/appleboy/graceful"
)

func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server forced to shutdown: %v", err)
			return err
		}
		log.Println("server exited")
		return nil
	})
}

func addAuditServiceShutdownJob(m *graceful.Manager, audit *services.AuditService) {
	m.AddShutdownJob(func() error {
		log.Println("shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := audit.Shutdown(ctx); err != nil {
			log.Printf("error shutting down audit service: %v", err)
			return err
		}
		return nil
	})
}

// addAuditLogCleanupJob periodically removes audit entries older than
// cfg.AuditLogRetention.
func addAuditLogCleanupJob(m *graceful.Manager, cfg *config.Config, audit *services.AuditService) {
	if !cfg.EnableAuditLogging || cfg.AuditLogRetention <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		cleanup := func() {
			if deleted, err := audit.CleanupOldLogs(cfg.AuditLogRetention); err != nil {
				log.Printf("failed to clean up old audit logs: %v", err)
			} else if deleted > 0 {
				log.Printf("cleaned up %d old audit logs", deleted)
			}
		}

		cleanup()
		for {
			select {
			case <-ticker.C:
				cleanup()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addGrantSweepJob periodically runs the idempotent DeleteExpiredGrants
// sweep (spec.md §4.2, §5) — the only background task the core's
// persistent state needs beyond request-scoped handling.
func addGrantSweepJob(m *graceful.Manager, cfg *config.Config, db *store.Store) {
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.GrantSweepInterval)
		defer ticker.Stop()

		sweep := func() {
			if deleted, err := db.DeleteExpiredGrants(); err != nil {
				log.Printf("failed to sweep expired grants: %v", err)
			} else if deleted > 0 {
				log.Printf("swept %d expired grants", deleted)
			}
		}

		sweep()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addMetricsGaugeUpdateJob periodically refreshes the active-grants
// gauge through the cache-aside CacheWrapper so the prometheus
// endpoint does not require a database hit per scrape.
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
	cacheWrapper *metrics.CacheWrapper,
) {
	if !cfg.MetricsEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.MetricsGaugeUpdateInterval)
		defer ticker.Stop()

		update := func() {
			count, err := cacheWrapper.GetActiveGrantsCount(ctx, cfg.MetricsCacheTTL)
			if err != nil {
				recorder.RecordDatabaseQueryError("count_active_grants")
				log.Printf("failed to refresh active grants gauge: %v", err)
				return
			}
			recorder.SetActiveGrantsCount(int(count))
		}

		update()
		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func addCacheCleanupJob(m *graceful.Manager, closer func() error) {
	if closer == nil {
		return
	}
	m.AddShutdownJob(func() error {
		if err := closer(); err != nil {
			log.Printf("error closing metrics cache: %v", err)
			return err
		}
		log.Println("metrics cache closed")
		return nil
	})
}
