package store_test

import (
	"testing"
	"time"

	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return s
}

func seedClient(t *testing.T, s *store.Store, id string, scope models.StringArray) *models.Client {
	t.Helper()
	c := &models.Client{
		ID:           id,
		Name:         "test client",
		Secret:       "ciphertext-placeholder",
		RedirectURIs: models.StringArray{"https://example.com/cb"},
		Scope:        scope,
		GrantTypes:   models.StringArray{"authorization_code", "refresh_token"},
		ClientType:   "confidential",
		OwnerID:      "owner-1",
	}
	require.NoError(t, s.CreateClient(c))
	return c
}

func TestGetClientNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetClient("does-not-exist")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertAuthorizationInsertsThenUnionsScope(t *testing.T) {
	s := newTestStore(t)
	client := seedClient(t, s, "client-upsert", models.StringArray{"read", "write", "admin"})

	a1, err := s.UpsertAuthorization(client.ID, "user-1", models.StringArray{"read"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"read"}, []string(a1.Scope))

	a2, err := s.UpsertAuthorization(client.ID, "user-1", models.StringArray{"write"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"read", "write"}, []string(a2.Scope))

	got, err := s.GetAuthorization(client.ID, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"read", "write"}, []string(got.Scope))
}

func TestUpdateClientScopeCascadesToAuthorizations(t *testing.T) {
	s := newTestStore(t)
	client := seedClient(t, s, "client-narrow", models.StringArray{"read", "write", "admin"})

	_, err := s.UpsertAuthorization(client.ID, "user-1", models.StringArray{"read", "write", "admin"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateClientScope(client.ID, models.StringArray{"read"}))

	got, err := s.GetAuthorization(client.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, []string(got.Scope))
}

func TestGrantSingleUseDelete(t *testing.T) {
	s := newTestStore(t)
	client := seedClient(t, s, "client-grant", models.StringArray{"read"})
	auth, err := s.UpsertAuthorization(client.ID, "user-1", models.StringArray{"read"})
	require.NoError(t, err)

	g := &models.Grant{
		CodeHash:        "hash-abc",
		Type:            models.GrantTypeAuthorizationCode,
		AuthorizationID: auth.ID,
		ResourceOwnerID: "user-1",
		RedirectURI:     "https://example.com/cb",
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, s.InsertGrant(g))

	fetched, err := s.GetGrantByCodeHash("hash-abc")
	require.NoError(t, err)
	assert.Equal(t, client.ID, fetched.Authorization.ClientID)

	ok, err := s.DeleteGrant(g.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Deleting again loses the race: 0 rows affected.
	ok, err = s.DeleteGrant(g.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetGrantByCodeHash("hash-abc")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteExpiredGrants(t *testing.T) {
	s := newTestStore(t)
	client := seedClient(t, s, "client-sweep", models.StringArray{"read"})
	auth, err := s.UpsertAuthorization(client.ID, "user-1", models.StringArray{"read"})
	require.NoError(t, err)

	expired := &models.Grant{
		CodeHash:        "hash-expired",
		Type:            models.GrantTypeAuthorizationCode,
		AuthorizationID: auth.ID,
		ResourceOwnerID: "user-1",
		RedirectURI:     "https://example.com/cb",
		ExpiresAt:       time.Now().Add(-time.Minute),
	}
	fresh := &models.Grant{
		CodeHash:        "hash-fresh",
		Type:            models.GrantTypeAuthorizationCode,
		AuthorizationID: auth.ID,
		ResourceOwnerID: "user-1",
		RedirectURI:     "https://example.com/cb",
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, s.InsertGrant(expired))
	require.NoError(t, s.InsertGrant(fresh))

	deleted, err := s.DeleteExpiredGrants()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetGrantByCodeHash("hash-fresh")
	assert.NoError(t, err)
}
