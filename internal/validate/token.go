package validate

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-authgate/oauth2core/internal/crypto"
	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"
)

// s256 is the PKCE S256 transform: BASE64URL-ENCODE(SHA256(verifier)).
func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GrantTypeRefreshToken is the only other grant type the token
// endpoint accepts besides models.GrantTypeAuthorizationCode.
const GrantTypeRefreshToken = "refresh_token"

// TokenRawInput is the untyped POST /token body plus the two places a
// client can authenticate: an HTTP Basic header, already split, and
// the form body fields client_id/client_secret.
type TokenRawInput struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
	RefreshToken string `form:"refresh_token"`
	Scope        string `form:"scope"`

	FormClientID     string `form:"client_id"`
	FormClientSecret string `form:"client_secret"`

	BasicUser, BasicPass string
	HasBasic             bool
}

// TokenRequest is the typed, cross-checked result of validating a
// POST /token request (authorization_code or refresh_token grant).
type TokenRequest struct {
	Client         *models.Client
	Grant          *models.Grant         // authorization_code grant only
	Authorization  *models.Authorization // authorization_code grant only
	RequestedScope models.StringArray    // the granted scope, or the narrower scope the request asked for
}

// ClientAuthError distinguishes "no credentials at all" (400) from
// "credentials present but wrong" (401), per RFC 6749 §5.2.
type ClientAuthError struct {
	Status int // 400 or 401
	Code   string
}

// AuthenticateClient implements the client-authentication rule shared
// by every grant type: Basic auth and body credentials are mutually
// exclusive, and the resolved secret is compared in constant time
// against the decrypted stored secret.
func AuthenticateClient(s *store.Store, cipher *crypto.FieldCipher, in TokenRawInput) (*models.Client, *ClientAuthError) {
	var clientID, clientSecret string
	switch {
	case in.HasBasic && (in.FormClientID != "" || in.FormClientSecret != ""):
		return nil, &ClientAuthError{Status: 400, Code: "invalid_request"}
	case in.HasBasic:
		clientID, clientSecret = in.BasicUser, in.BasicPass
	default:
		clientID, clientSecret = in.FormClientID, in.FormClientSecret
	}

	if clientID == "" {
		return nil, &ClientAuthError{Status: 400, Code: "invalid_request"}
	}

	client, err := s.GetClient(clientID)
	if err != nil {
		return nil, &ClientAuthError{Status: 401, Code: "invalid_client"}
	}

	if client.IsPublic() {
		// Public clients never need a secret; PKCE is the proof of
		// possession. But if one was supplied anyway, it must still
		// match, so a mis-configured public client is caught by tests.
		if clientSecret == "" {
			return client, nil
		}
	}

	decrypted, err := cipher.DecryptString(client.Secret)
	if err != nil || !crypto.ConstantTimeEqual(decrypted, clientSecret) {
		return nil, &ClientAuthError{Status: 401, Code: "invalid_client"}
	}
	return client, nil
}

// ValidateAuthorizationCodeGrant cross-checks an already-fetched grant
// (looked up by code hash, not yet deleted: the caller consumes it
// after validation succeeds) against the authenticated client and
// request. It performs no I/O itself.
func ValidateAuthorizationCodeGrant(grant *models.Grant, client *models.Client, in TokenRawInput, cipher *crypto.FieldCipher) Validated[TokenRequest] {
	var v Validated[TokenRequest]
	v.Value.Client = client
	v.Value.Grant = grant
	v.Value.Authorization = &grant.Authorization

	if strings.TrimSpace(in.Code) == "" {
		v.AddError(OtherChecks, "code", "invalid_request")
		return v
	}
	if grant.Authorization.ClientID != client.ID {
		v.AddError(OtherChecks, "code", "invalid_grant")
		return v
	}
	if grant.IsExpired(time.Now()) {
		v.AddError(OtherChecks, "code", "invalid_grant")
		return v
	}
	if grant.RedirectURISpecified {
		if in.RedirectURI == "" || in.RedirectURI != grant.RedirectURI {
			v.AddError(OtherChecks, "redirect_uri", "invalid_grant")
			return v
		}
	}
	if grant.HasChallenge() {
		if in.CodeVerifier == "" {
			v.AddError(OtherChecks, "code_verifier", "invalid_request")
			return v
		}
		challenge, err := cipher.DecryptString(grant.ChallengeCiphertext)
		if err != nil {
			v.AddError(OtherChecks, "code_verifier", "invalid_grant")
			return v
		}
		computed := s256(in.CodeVerifier)
		if !crypto.ConstantTimeEqual(challenge, computed) {
			v.AddError(OtherChecks, "code_verifier", "invalid_grant")
			return v
		}
	} else if in.CodeVerifier != "" {
		v.AddError(OtherChecks, "code_verifier", "invalid_request")
		return v
	}

	if strings.TrimSpace(in.Scope) == "" {
		v.Value.RequestedScope = grant.Authorization.Scope
		return v
	}

	requested := splitScope(in.Scope)
	if !grant.Authorization.Scope.Subset(requested) {
		v.AddError(OtherChecks, "scope", "invalid_scope")
		return v
	}
	v.Value.RequestedScope = models.StringArray(requested)

	return v
}

// ValidateRefreshTokenGrant implements the refresh_token branch: the
// refresh token must have been issued to the authenticated client,
// and any requested scope must be a subset of the scope originally
// granted (RFC 6749 §6 forbids widening on refresh).
func ValidateRefreshTokenGrant(client *models.Client, originalScope models.StringArray, in TokenRawInput) Validated[TokenRequest] {
	var v Validated[TokenRequest]
	v.Value.Client = client

	if strings.TrimSpace(in.RefreshToken) == "" {
		v.AddError(OtherChecks, "refresh_token", "invalid_request")
		return v
	}

	if strings.TrimSpace(in.Scope) == "" {
		v.Value.RequestedScope = originalScope
		return v
	}

	requested := splitScope(in.Scope)
	if !originalScope.Subset(requested) {
		v.AddError(OtherChecks, "scope", "invalid_scope")
		return v
	}
	v.Value.RequestedScope = models.StringArray(requested)
	return v
}

// ValidateGrantType implements the grant_type dispatch rule: only
// authorization_code and refresh_token are recognized, and the
// authenticated client must be configured for the one requested.
func ValidateGrantType(client *models.Client, grantType string) Validated[string] {
	switch grantType {
	case "":
		return Fail[string](OtherChecks, "grant_type", "invalid_request")
	case models.GrantTypeAuthorizationCode, GrantTypeRefreshToken:
		if !client.SupportsGrantType(grantType) {
			return Fail[string](OtherChecks, "grant_type", "unauthorized_client")
		}
		return Ok(grantType)
	default:
		return Fail[string](OtherChecks, "grant_type", "unsupported_grant_type")
	}
}
