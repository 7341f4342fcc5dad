package validate_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-authgate/oauth2core/internal/crypto"
	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	return s
}

func newTestFieldCipher(t *testing.T) *crypto.FieldCipher {
	t.Helper()
	c, err := crypto.NewFieldCipher([]byte("0123456789abcdef0123456789abcdef"), "test")
	require.NoError(t, err)
	return c
}

func seedTokenClient(t *testing.T, s *store.Store, cipher *crypto.FieldCipher, id, secret, clientType string) *models.Client {
	t.Helper()
	encSecret, err := cipher.EncryptString(secret)
	require.NoError(t, err)
	c := &models.Client{
		ID:           id,
		Name:         "test client",
		Secret:       encSecret,
		RedirectURIs: models.StringArray{"https://example.com/cb"},
		Scope:        models.StringArray{"read", "write"},
		GrantTypes:   models.StringArray{"authorization_code", "refresh_token"},
		ClientType:   clientType,
		OwnerID:      "owner-1",
	}
	require.NoError(t, s.CreateClient(c))
	return c
}

func TestAuthenticateClientBasicSucceeds(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-1", "s3cret", "confidential")

	got, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		HasBasic: true, BasicUser: client.ID, BasicPass: "s3cret",
	})
	require.Nil(t, authErr)
	assert.Equal(t, client.ID, got.ID)
}

func TestAuthenticateClientWrongSecretIs401(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-2", "s3cret", "confidential")

	_, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		HasBasic: true, BasicUser: client.ID, BasicPass: "wrong",
	})
	require.NotNil(t, authErr)
	assert.Equal(t, 401, authErr.Status)
	assert.Equal(t, "invalid_client", authErr.Code)
}

func TestAuthenticateClientBasicAndBodyBothPresentIsInvalidRequest(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-3", "s3cret", "confidential")

	_, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		HasBasic: true, BasicUser: client.ID, BasicPass: "s3cret",
		FormClientID: client.ID, FormClientSecret: "s3cret",
	})
	require.NotNil(t, authErr)
	assert.Equal(t, 400, authErr.Status)
}

func TestAuthenticateClientPublicClientSkipsSecretCheck(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-4", "", "public")

	got, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		FormClientID: client.ID,
	})
	require.Nil(t, authErr)
	assert.Equal(t, client.ID, got.ID)
}

func TestAuthenticateClientPublicClientWithWrongSecretFails(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-4b", "s3cret", "public")

	_, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		FormClientID: client.ID, FormClientSecret: "wrong",
	})
	require.NotNil(t, authErr)
	assert.Equal(t, 401, authErr.Status)
	assert.Equal(t, "invalid_client", authErr.Code)
}

func TestAuthenticateClientPublicClientWithCorrectSecretSucceeds(t *testing.T) {
	s := newTokenTestStore(t)
	cipher := newTestFieldCipher(t)
	client := seedTokenClient(t, s, cipher, "client-4c", "s3cret", "public")

	got, authErr := validate.AuthenticateClient(s, cipher, validate.TokenRawInput{
		FormClientID: client.ID, FormClientSecret: "s3cret",
	})
	require.Nil(t, authErr)
	assert.Equal(t, client.ID, got.ID)
}

func makeGrant(t *testing.T, authorization models.Authorization, challenge string, cipher *crypto.FieldCipher) *models.Grant {
	t.Helper()
	var challengeCiphertext, method string
	if challenge != "" {
		ct, err := cipher.EncryptString(challenge)
		require.NoError(t, err)
		challengeCiphertext, method = ct, "S256"
	}
	return &models.Grant{
		CodeHash:             "hash",
		Type:                 models.GrantTypeAuthorizationCode,
		AuthorizationID:      authorization.ID,
		ResourceOwnerID:      authorization.ResourceOwnerID,
		RedirectURI:          "https://example.com/cb",
		RedirectURISpecified: true,
		ChallengeCiphertext:  challengeCiphertext,
		ChallengeMethod:      method,
		ExpiresAt:            time.Now().Add(10 * time.Minute),
		Authorization:        authorization,
	}
}

func TestValidateAuthorizationCodeGrantHappyPath(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-5"}
	authorization := models.Authorization{ID: 1, ClientID: client.ID, ResourceOwnerID: "user-1"}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb",
	}, cipher)
	require.True(t, v.Valid(), "%v", v.Errors)
	assert.Equal(t, client.ID, v.Value.Client.ID)
}

func TestValidateAuthorizationCodeGrantPKCEMismatchFails(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-6"}
	authorization := models.Authorization{ID: 2, ClientID: client.ID, ResourceOwnerID: "user-1"}

	verifier := "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKLMNOPQRST"
	challenge := computeS256ForTest(verifier)
	grant := makeGrant(t, authorization, challenge, cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb", CodeVerifier: "wrong-verifier",
	}, cipher)
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["code_verifier"], "invalid_grant")
}

func TestValidateAuthorizationCodeGrantPKCEMatchSucceeds(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-7"}
	authorization := models.Authorization{ID: 3, ClientID: client.ID, ResourceOwnerID: "user-1"}

	verifier := "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKLMNOPQRST"
	challenge := computeS256ForTest(verifier)
	grant := makeGrant(t, authorization, challenge, cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb", CodeVerifier: verifier,
	}, cipher)
	require.True(t, v.Valid(), "%v", v.Errors)
}

func TestValidateAuthorizationCodeGrantExpired(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-8"}
	authorization := models.Authorization{ID: 4, ClientID: client.ID, ResourceOwnerID: "user-1"}
	grant := makeGrant(t, authorization, "", cipher)
	grant.ExpiresAt = time.Now().Add(-time.Minute)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb",
	}, cipher)
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["code"], "invalid_grant")
}

func TestValidateAuthorizationCodeGrantRedirectURIMismatch(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-9"}
	authorization := models.Authorization{ID: 5, ClientID: client.ID, ResourceOwnerID: "user-1"}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://other.example.com/cb",
	}, cipher)
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["redirect_uri"], "invalid_grant")
}

func TestValidateAuthorizationCodeGrantWrongClient(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-10"}
	authorization := models.Authorization{ID: 6, ClientID: "someone-else", ResourceOwnerID: "user-1"}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb",
	}, cipher)
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["code"], "invalid_grant")
}

func TestValidateAuthorizationCodeGrantDefaultsToAuthorizationScope(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-10b"}
	authorization := models.Authorization{
		ID: 7, ClientID: client.ID, ResourceOwnerID: "user-1",
		Scope: models.StringArray{"read", "write"},
	}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb",
	}, cipher)
	require.True(t, v.Valid(), "%v", v.Errors)
	assert.ElementsMatch(t, []string{"read", "write"}, []string(v.Value.RequestedScope))
}

func TestValidateAuthorizationCodeGrantNarrowsScope(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-10c"}
	authorization := models.Authorization{
		ID: 8, ClientID: client.ID, ResourceOwnerID: "user-1",
		Scope: models.StringArray{"read", "write"},
	}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb", Scope: "read",
	}, cipher)
	require.True(t, v.Valid(), "%v", v.Errors)
	assert.Equal(t, []string{"read"}, []string(v.Value.RequestedScope))
}

func TestValidateAuthorizationCodeGrantCannotWidenScope(t *testing.T) {
	cipher := newTestFieldCipher(t)
	client := &models.Client{ID: "client-10d"}
	authorization := models.Authorization{
		ID: 9, ClientID: client.ID, ResourceOwnerID: "user-1",
		Scope: models.StringArray{"read"},
	}
	grant := makeGrant(t, authorization, "", cipher)

	v := validate.ValidateAuthorizationCodeGrant(grant, client, validate.TokenRawInput{
		Code: "plaintext-code", RedirectURI: "https://example.com/cb", Scope: "read write",
	}, cipher)
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["scope"], "invalid_scope")
}

func TestValidateRefreshTokenGrantDefaultsToOriginalScope(t *testing.T) {
	client := &models.Client{ID: "client-11"}
	v := validate.ValidateRefreshTokenGrant(client, models.StringArray{"read", "write"}, validate.TokenRawInput{
		RefreshToken: "rt-abc",
	})
	require.True(t, v.Valid())
	assert.ElementsMatch(t, []string{"read", "write"}, []string(v.Value.RequestedScope))
}

func TestValidateRefreshTokenGrantNarrowsScope(t *testing.T) {
	client := &models.Client{ID: "client-12"}
	v := validate.ValidateRefreshTokenGrant(client, models.StringArray{"read", "write"}, validate.TokenRawInput{
		RefreshToken: "rt-abc", Scope: "read",
	})
	require.True(t, v.Valid())
	assert.Equal(t, []string{"read"}, []string(v.Value.RequestedScope))
}

func TestValidateRefreshTokenGrantCannotWidenScope(t *testing.T) {
	client := &models.Client{ID: "client-13"}
	v := validate.ValidateRefreshTokenGrant(client, models.StringArray{"read"}, validate.TokenRawInput{
		RefreshToken: "rt-abc", Scope: "read write admin",
	})
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["scope"], "invalid_scope")
}

func TestValidateGrantTypeUnsupported(t *testing.T) {
	client := &models.Client{GrantTypes: models.StringArray{"authorization_code"}}
	v := validate.ValidateGrantType(client, "client_credentials")
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["grant_type"], "unsupported_grant_type")
}

func TestValidateGrantTypeNotAuthorizedForClient(t *testing.T) {
	client := &models.Client{GrantTypes: models.StringArray{"authorization_code"}}
	v := validate.ValidateGrantType(client, "refresh_token")
	require.False(t, v.Valid())
	assert.Contains(t, v.Errors["grant_type"], "unauthorized_client")
}

func computeS256ForTest(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
