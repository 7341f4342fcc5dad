package token_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-authgate/oauth2core/internal/token"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryClient(t *testing.T) *retry.Client {
	t.Helper()
	client, err := retry.NewRealtimeClient(retry.WithHTTPClient(http.DefaultClient), retry.WithMaxRetries(0))
	require.NoError(t, err)
	return client
}

func TestHTTPMinterMintSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/sessions/mint", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "access-xyz",
			"access_expires_at":  1893456000,
			"refresh_token":      "refresh-xyz",
			"refresh_expires_at": 1893542400,
		})
	}))
	defer srv.Close()

	m := token.NewHTTPMinter(newTestRetryClient(t), srv.URL)
	bundle, err := m.Mint(token.UpsertArgs{UserID: "user-1", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)
	assert.Equal(t, "access-xyz", bundle.AccessToken)
	assert.Equal(t, "refresh-xyz", bundle.RefreshToken)
}

func TestHTTPMinterMintRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "upstream unavailable"})
	}))
	defer srv.Close()

	m := token.NewHTTPMinter(newTestRetryClient(t), srv.URL)
	_, err := m.Mint(token.UpsertArgs{UserID: "user-1", SessionType: "oauth2"})
	assert.Error(t, err)
}

func TestHTTPMinterVerifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/sessions/verify-refresh", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub": "user-1", "cid": "client-1", "styp": "oauth2",
		})
	}))
	defer srv.Close()

	m := token.NewHTTPMinter(newTestRetryClient(t), srv.URL)
	claims, err := m.Verify("refresh-xyz")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "client-1", claims.ClientID)
}
