package token_test

import (
	"testing"
	"time"

	"github.com/go-authgate/oauth2core/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestLocalMinterMintAccessOnly(t *testing.T) {
	m, err := token.NewLocalMinter(newTestDB(t), []byte("secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)

	bundle, err := m.Mint(token.UpsertArgs{
		UserID: "user-1", Transport: "bearer", SessionType: "oauth2",
		AccessClaimOverrides: map[string]any{"cid": "client-1", "scope": "read"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.Empty(t, bundle.RefreshToken)
}

func TestLocalMinterMintAndVerifyRefresh(t *testing.T) {
	db := newTestDB(t)
	m, err := token.NewLocalMinter(db, []byte("secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)

	bundle, err := m.Mint(token.UpsertArgs{
		UserID: "user-2", Transport: "bearer", SessionType: "oauth2",
		RefreshClaimOverrides: map[string]any{"cid": "client-2"},
		IssueRefreshToken:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, bundle.RefreshToken)

	claims, err := m.Verify(bundle.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Subject)
	assert.Equal(t, "client-2", claims.ClientID)
	assert.Equal(t, "oauth2", claims.SessionType)
}

func TestLocalMinterVerifyRejectsAccessTokenAsRefresh(t *testing.T) {
	m, err := token.NewLocalMinter(newTestDB(t), []byte("secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)

	bundle, err := m.Mint(token.UpsertArgs{UserID: "user-3", SessionType: "oauth2"})
	require.NoError(t, err)

	_, err = m.Verify(bundle.AccessToken)
	assert.ErrorIs(t, err, token.ErrRefreshTokenWrongType)
}

func TestLocalMinterVerifyRejectsForeignSignature(t *testing.T) {
	m, err := token.NewLocalMinter(newTestDB(t), []byte("secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)

	other, err := token.NewLocalMinter(newTestDB(t), []byte("other-secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)
	bundle, err := other.Mint(token.UpsertArgs{UserID: "user-4", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)

	_, err = m.Verify(bundle.RefreshToken)
	assert.ErrorIs(t, err, token.ErrRefreshTokenMalformed)
}

func TestLocalMinterVerifyRejectsWrongSessionType(t *testing.T) {
	m, err := token.NewLocalMinter(newTestDB(t), []byte("secret"), time.Hour, 24*time.Hour, false)
	require.NoError(t, err)

	bundle, err := m.Mint(token.UpsertArgs{UserID: "user-7", SessionType: "admin", IssueRefreshToken: true})
	require.NoError(t, err)

	_, err = m.Verify(bundle.RefreshToken)
	assert.ErrorIs(t, err, token.ErrRefreshTokenWrongType)
}

func TestLocalMinterRotationGraceWindow(t *testing.T) {
	db := newTestDB(t)
	m, err := token.NewLocalMinter(db, []byte("secret"), time.Hour, 24*time.Hour, true)
	require.NoError(t, err)

	first, err := m.Mint(token.UpsertArgs{UserID: "user-5", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)

	second, err := m.Mint(token.UpsertArgs{UserID: "user-5", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)

	// The old token is still valid inside the grace window.
	_, err = m.Verify(first.RefreshToken)
	require.NoError(t, err)

	// The new token is valid too.
	_, err = m.Verify(second.RefreshToken)
	require.NoError(t, err)
}

func TestLocalMinterReuseOutsideGraceWindowFails(t *testing.T) {
	db := newTestDB(t)
	m, err := token.NewLocalMinter(db, []byte("secret"), time.Hour, 24*time.Hour, true)
	require.NoError(t, err)

	first, err := m.Mint(token.UpsertArgs{UserID: "user-6", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)
	_, err = m.Mint(token.UpsertArgs{UserID: "user-6", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)
	_, err = m.Mint(token.UpsertArgs{UserID: "user-6", SessionType: "oauth2", IssueRefreshToken: true})
	require.NoError(t, err)

	// first is now two rotations old: neither current nor previous.
	_, err = m.Verify(first.RefreshToken)
	assert.ErrorIs(t, err, token.ErrRefreshTokenReused)
}
