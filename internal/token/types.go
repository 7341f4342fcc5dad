// Package token defines the abstraction boundary between the
// authorization-server core and whatever actually signs bearer tokens
// and stores sessions. Everything in this package is an interface
// plus two concrete implementations the core never has to use
// directly — the handlers only ever see Minter/RefreshVerifier.
package token

import "time"

// Bundle is what a successful mint produces. RefreshToken is empty
// for flows that must not issue one.
type Bundle struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// UpsertArgs describes the session a mint call should create or
// refresh. The core always sets Transport/SessionType/ClaimOverrides
// itself; Config.CustomizeSessionUpsertArgs is not applied to these
// args before a mint.
type UpsertArgs struct {
	UserID                string
	Transport             string // "bearer"
	SessionType           string // "oauth2"
	AccessClaimOverrides  map[string]any
	RefreshClaimOverrides map[string]any
	IssueRefreshToken     bool
}

// Minter mints an access (and optionally refresh) token and persists
// whatever session record it needs to later verify/revoke them.
type Minter interface {
	Mint(args UpsertArgs) (Bundle, error)
}

// RefreshClaims is what a verified refresh token resolves to.
type RefreshClaims struct {
	Subject     string // sub
	ClientID    string // cid
	SessionType string // styp
}

// RefreshVerifier verifies a raw refresh token and returns its
// claims, or an error describing why it was rejected (expired,
// unknown session, reused, outside the freshness grace window, ...).
// Every rejection reason must map to invalid_grant at the HTTP layer;
// the distinct error values exist only for audit logging.
type RefreshVerifier interface {
	Verify(rawToken string) (RefreshClaims, error)
}
