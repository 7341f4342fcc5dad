// Package store persists the three entities the authorization-server
// core needs — Client, Authorization, Grant — behind a narrow set of
// operations. Uniqueness is enforced by database unique indexes, and
// the client-scope narrowing cascade runs inside one transaction;
// callers never see a partially applied write. No ON DELETE cascades
// are declared: deleting a client or an authorization does not remove
// its dependent rows.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-authgate/oauth2core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// New opens a database connection for driver/dsn and auto-migrates
// the core schema.
func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Client{},
		&models.Authorization{},
		&models.Grant{},
		&models.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying *gorm.DB for callers (e.g. audit) that
// need GORM directly rather than the narrow operation set below.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// GetClient returns the client with the given id, or ErrNotFound.
func (s *Store) GetClient(id string) (*models.Client, error) {
	var c models.Client
	if err := s.db.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateClient inserts a new client row. Used by the external
// application-CRUD surface, not by the authorize/token endpoints.
func (s *Store) CreateClient(c *models.Client) error {
	if err := s.db.Create(c).Error; err != nil {
		return fmt.Errorf("store: create client: %w", err)
	}
	return nil
}

// ListClientsByOwner returns clients owned by ownerID, paginated.
func (s *Store) ListClientsByOwner(
	ownerID string,
	params PaginationParams,
) ([]models.Client, PaginationResult, error) {
	var clients []models.Client
	var total int64

	q := s.db.Model(&models.Client{}).Where("owner_id = ?", ownerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	offset := (params.Page - 1) * params.PageSize
	if err := q.Order("created_at desc").
		Offset(offset).Limit(params.PageSize).
		Find(&clients).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return clients, CalculatePagination(total, params.Page, params.PageSize), nil
}

// UpdateClientScope narrows a client's scope and, in the same
// transaction, intersects every dependent authorization's scope with
// the new client scope so no authorization ever exceeds it.
func (s *Store) UpdateClientScope(clientID string, newScope models.StringArray) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Client{}).
			Where("id = ?", clientID).
			Update("scope", newScope).Error; err != nil {
			return err
		}

		var authorizations []models.Authorization
		if err := tx.Where("client_id = ?", clientID).Find(&authorizations).Error; err != nil {
			return err
		}
		for _, auth := range authorizations {
			narrowed := auth.Scope.Intersect(newScope)
			if err := tx.Model(&models.Authorization{}).
				Where("id = ?", auth.ID).
				Update("scope", narrowed).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAuthorization returns the at-most-one authorization for
// (clientID, ownerID), or ErrNotFound.
func (s *Store) GetAuthorization(clientID, ownerID string) (*models.Authorization, error) {
	var a models.Authorization
	err := s.db.First(&a, "client_id = ? AND resource_owner_id = ?", clientID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UpsertAuthorization inserts an authorization with scope, or if one
// already exists for (clientID, ownerID), widens its scope to the
// union of old and new. Serialized by the unique (client_id,
// resource_owner_id) index: on conflict the insert is retried once as
// an update within the same transaction.
func (s *Store) UpsertAuthorization(
	clientID, ownerID string,
	scope models.StringArray,
) (*models.Authorization, error) {
	var result models.Authorization
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.getAuthorizationTx(tx, clientID, ownerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		if existing == nil {
			a := models.Authorization{ClientID: clientID, ResourceOwnerID: ownerID, Scope: scope}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "client_id"}, {Name: "resource_owner_id"}},
				DoNothing: true,
			}).Create(&a)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				result = a
				return nil
			}
			// A concurrent upsert inserted the row first: retry once as an update.
			if existing, err = s.getAuthorizationTx(tx, clientID, ownerID); err != nil {
				return err
			}
		}

		union := existing.Scope.Union(scope)
		if err := tx.Model(existing).Update("scope", union).Error; err != nil {
			return err
		}
		existing.Scope = union
		result = *existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert authorization: %w", err)
	}
	return &result, nil
}

func (s *Store) getAuthorizationTx(tx *gorm.DB, clientID, ownerID string) (*models.Authorization, error) {
	var a models.Authorization
	err := tx.First(&a, "client_id = ? AND resource_owner_id = ?", clientID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetGrantByCodeHash returns the grant for the given HMAC code hash
// with its parent Authorization preloaded, or ErrNotFound.
func (s *Store) GetGrantByCodeHash(codeHash string) (*models.Grant, error) {
	var g models.Grant
	err := s.db.Preload("Authorization").First(&g, "code_hash = ?", codeHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// InsertGrant creates a new single-use grant. A collision on the
// unique code-hash index (astronomically unlikely for a CSPRNG code)
// surfaces as ErrGrantAlreadyConsumed.
func (s *Store) InsertGrant(g *models.Grant) error {
	if err := s.db.Create(g).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrGrantAlreadyConsumed
		}
		return fmt.Errorf("store: insert grant: %w", err)
	}
	return nil
}

// DeleteGrant deletes the grant with the given id. The affected-rows
// count gates token issuance: 0 rows means a concurrent exchange won
// the race, and the caller must treat it as invalid_grant.
func (s *Store) DeleteGrant(id uint) (bool, error) {
	res := s.db.Delete(&models.Grant{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpiredGrants bulk-deletes grants whose expires_at is in the
// past. Idempotent; safe to call on a ticker.
func (s *Store) DeleteExpiredGrants() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.Grant{})
	return res.RowsAffected, res.Error
}

// CountActiveGrants returns the number of unexpired grants, for the
// metrics package's active-grants gauge.
func (s *Store) CountActiveGrants() (int64, error) {
	var count int64
	err := s.db.Model(&models.Grant{}).Where("expires_at >= ?", time.Now()).Count(&count).Error
	return count, err
}

// Health checks the database connection.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateAuditLog persists a single audit entry.
func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

// CreateAuditLogBatch persists a batch of audit entries in one insert.
func (s *Store) CreateAuditLogBatch(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(&entries).Error
}

func isUniqueViolation(err error) bool {
	// SQLite and Postgres both surface the offending constraint in the
	// error text; GORM does not normalize this across drivers.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key value")
}
