package bootstrap

import (
	"fmt"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/store"
)

// initializeDatabase opens the store's database connection and
// auto-migrates the core schema (clients, authorizations, grants,
// audit_logs).
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: initialize database: %w", err)
	}
	return db, nil
}
