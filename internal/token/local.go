package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-authgate/oauth2core/internal/crypto"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Errors RefreshVerifier can return; every one of them maps to
// invalid_grant at the HTTP layer, but distinct values let callers
// log which check actually failed.
var (
	ErrRefreshTokenMalformed = errors.New("token: refresh token malformed or signature invalid")
	ErrRefreshTokenExpired   = errors.New("token: refresh token expired")
	ErrRefreshTokenWrongType = errors.New("token: not a refresh token for this session type")
	ErrSessionNotFound       = errors.New("token: session does not exist")
	ErrRefreshTokenReused    = errors.New("token: refresh token reused outside freshness window")
)

// freshnessGrace is how long a rotated-out refresh token stays valid,
// to tolerate clock skew and clients retrying right at the boundary.
const freshnessGrace = 10 * time.Second

// LocalMinter signs HS256 bearer tokens with golang-jwt/jwt/v5 and
// persists one session row per (user_id, session_type) in db. It is
// the default Minter/RefreshVerifier implementation; hosts that
// run a separate signing service use HTTPMinter instead.
type LocalMinter struct {
	db         *gorm.DB
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
}

// NewLocalMinter auto-migrates its session table on db and returns a
// minter keyed by secret, with the given access/refresh token
// lifetimes. Every mint that issues a refresh token starts a new one
// and replaces the session's current index. rotate controls what
// happens to the replaced token: with rotate it stays valid for
// freshnessGrace, without it it is invalid at once.
func NewLocalMinter(db *gorm.DB, secret []byte, accessTTL, refreshTTL time.Duration, rotate bool) (*LocalMinter, error) {
	if err := db.AutoMigrate(&session{}); err != nil {
		return nil, fmt.Errorf("token: migrate sessions: %w", err)
	}
	return &LocalMinter{db: db, secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, rotate: rotate}, nil
}

func (m *LocalMinter) sign(claims jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

// Mint implements Minter.
func (m *LocalMinter) Mint(args UpsertArgs) (Bundle, error) {
	now := time.Now()
	accessExp := now.Add(m.accessTTL)

	accessClaims := jwt.MapClaims{
		"sub":  args.UserID,
		"styp": args.SessionType,
		"type": "access",
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  accessExp.Unix(),
	}
	for k, v := range args.AccessClaimOverrides {
		accessClaims[k] = v
	}

	accessToken, err := m.sign(accessClaims)
	if err != nil {
		return Bundle{}, fmt.Errorf("token: sign access token: %w", err)
	}

	bundle := Bundle{AccessToken: accessToken, AccessExpiresAt: accessExp}

	if !args.IssueRefreshToken {
		return bundle, nil
	}

	refreshIndex, err := crypto.RandomToken(16)
	if err != nil {
		return Bundle{}, fmt.Errorf("token: generate refresh index: %w", err)
	}
	refreshExp := now.Add(m.refreshTTL)

	refreshClaims := jwt.MapClaims{
		"sub":  args.UserID,
		"styp": args.SessionType,
		"type": "refresh",
		"ridx": refreshIndex,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  refreshExp.Unix(),
	}
	for k, v := range args.RefreshClaimOverrides {
		refreshClaims[k] = v
	}

	refreshToken, err := m.sign(refreshClaims)
	if err != nil {
		return Bundle{}, fmt.Errorf("token: sign refresh token: %w", err)
	}

	if err := m.upsertSession(args.UserID, args.SessionType, refreshIndex, refreshExp, now); err != nil {
		return Bundle{}, err
	}

	bundle.RefreshToken = refreshToken
	bundle.RefreshExpiresAt = refreshExp
	return bundle, nil
}

func (m *LocalMinter) upsertSession(userID, sessionType, newIndex string, expiresAt, now time.Time) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		var existing session
		err := tx.First(&existing, "user_id = ? AND session_type = ?", userID, sessionType).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&session{
				UserID: userID, SessionType: sessionType,
				CurrentIndex: newIndex, ExpiresAt: expiresAt,
			}).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{"expires_at": expiresAt}
		if m.rotate {
			updates["previous_index"] = existing.CurrentIndex
			updates["previous_until"] = now.Add(freshnessGrace)
			updates["current_index"] = newIndex
		} else {
			updates["current_index"] = newIndex
			updates["previous_index"] = ""
		}
		return tx.Model(&existing).Updates(updates).Error
	})
}

// Verify implements RefreshVerifier.
func (m *LocalMinter) Verify(rawToken string) (RefreshClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RefreshClaims{}, ErrRefreshTokenExpired
		}
		return RefreshClaims{}, ErrRefreshTokenMalformed
	}

	if typ, _ := claims["type"].(string); typ != "refresh" {
		return RefreshClaims{}, ErrRefreshTokenWrongType
	}
	sessionType, _ := claims["styp"].(string)
	if sessionType != "oauth2" {
		return RefreshClaims{}, ErrRefreshTokenWrongType
	}
	subject, _ := claims["sub"].(string)
	refreshIndex, _ := claims["ridx"].(string)
	clientID, _ := claims["cid"].(string)

	var existing session
	err = m.db.First(&existing, "user_id = ? AND session_type = ?", subject, sessionType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefreshClaims{}, ErrSessionNotFound
	}
	if err != nil {
		return RefreshClaims{}, fmt.Errorf("token: look up session: %w", err)
	}

	now := time.Now()
	switch {
	case refreshIndex == existing.CurrentIndex:
		// fresh
	case refreshIndex == existing.PreviousIndex && existing.PreviousIndex != "" && now.Before(existing.PreviousUntil):
		// within the rotation freshness grace window
	default:
		return RefreshClaims{}, ErrRefreshTokenReused
	}

	return RefreshClaims{Subject: subject, ClientID: clientID, SessionType: sessionType}, nil
}
