//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestUpsertAuthorizationPostgresConflictRetry exercises the unique
// (client_id, resource_owner_id) index and the union-on-conflict path
// against a real Postgres, where the teacher's own store tests run.
func TestUpsertAuthorizationPostgresConflictRetry(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("oauth2core"),
		postgres.WithUsername("oauth2core"),
		postgres.WithPassword("oauth2core"),
		postgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := store.New("postgres", dsn)
	require.NoError(t, err)

	client := &models.Client{
		ID:           "client-pg",
		Name:         "pg test client",
		Secret:       "ciphertext-placeholder",
		RedirectURIs: models.StringArray{"https://example.com/cb"},
		Scope:        models.StringArray{"read", "write"},
		GrantTypes:   models.StringArray{"authorization_code"},
		ClientType:   "confidential",
		OwnerID:      "owner-1",
	}
	require.NoError(t, s.CreateClient(client))

	done := make(chan error, 2)
	for _, scope := range []models.StringArray{{"read"}, {"write"}} {
		go func(sc models.StringArray) {
			_, err := s.UpsertAuthorization(client.ID, "user-1", sc)
			done <- err
		}(scope)
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for concurrent upserts")
		}
	}

	got, err := s.GetAuthorization(client.ID, "user-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"read", "write"}, []string(got.Scope))
}
