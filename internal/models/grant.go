package models

import "time"

// GrantTypeAuthorizationCode is the only Grant.Type value the core issues.
const GrantTypeAuthorizationCode = "authorization_code"

// Grant is a short-lived, single-use authorization code bound to an
// Authorization. CodeHash is the keyed HMAC-SHA256 of the plaintext
// code (crypto.CodeHMAC) — the plaintext is handed to the client
// exactly once, in the redirect envelope, and is never stored.
// ChallengeCiphertext holds the PKCE code_challenge encrypted with
// crypto.FieldCipher so it can be recovered for the constant-time
// compare against code_verifier at exchange time.
type Grant struct {
	ID                   uint   `gorm:"primaryKey;autoIncrement"`
	CodeHash             string `gorm:"uniqueIndex;not null"`
	Type                 string `gorm:"not null;default:'authorization_code'"`
	AuthorizationID      uint   `gorm:"not null;index"`
	ResourceOwnerID      string `gorm:"not null;index"`
	RedirectURI          string `gorm:"not null"`
	RedirectURISpecified bool   `gorm:"not null;default:false"`
	ChallengeCiphertext  string `gorm:"column:code_challenge_ciphertext"`
	ChallengeMethod      string `gorm:"column:code_challenge_method;default:''"`
	ExpiresAt            time.Time
	CreatedAt            time.Time

	Authorization Authorization `gorm:"foreignKey:AuthorizationID"`
}

func (Grant) TableName() string {
	return "grants"
}

func (g *Grant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

func (g *Grant) HasChallenge() bool {
	return g.ChallengeCiphertext != ""
}
