package validate

import (
	"strings"

	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"
)

// PKCEMode controls how strictly code_challenge is required.
type PKCEMode string

const (
	PKCEAll    PKCEMode = "all"
	PKCEPublic PKCEMode = "public"
	PKCENo     PKCEMode = "no"
)

// AuthorizeRequest is the typed, cross-checked result of validating a
// POST /authorize request.
type AuthorizeRequest struct {
	Client              *models.Client
	RedirectURI         string
	RedirectSpecified   bool
	ResponseType        string
	Scope               models.StringArray
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	PermissionGranted   bool
}

// AuthorizeRawInput is the untyped request body/query, exactly as
// received from the consent UI. Tags cover both form and JSON bodies.
type AuthorizeRawInput struct {
	ClientID            string `form:"client_id"            json:"client_id"`
	RedirectURI         string `form:"redirect_uri"         json:"redirect_uri"`
	ResponseType        string `form:"response_type"        json:"response_type"`
	Scope               string `form:"scope"                json:"scope"`
	State               string `form:"state"                json:"state"`
	CodeChallenge       string `form:"code_challenge"       json:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method" json:"code_challenge_method"`
	PermissionGranted   string `form:"permission_granted"   json:"permission_granted"`
}

// AuthorizeOptions carries the server-side configuration the authorize
// validator needs but that isn't part of the request itself.
type AuthorizeOptions struct {
	AppScopes models.StringArray
	PKCEMode  PKCEMode
}

// ValidateAuthorize implements the authorize-endpoint rules 1–7. The
// only I/O it performs is the explicit client and authorization
// lookups rule 1 and rule 4 require.
func ValidateAuthorize(
	s *store.Store,
	in AuthorizeRawInput,
	ownerID string,
	opts AuthorizeOptions,
) Validated[AuthorizeRequest] {
	var v Validated[AuthorizeRequest]

	// Rule 1: client_id present, resolves to an existing client.
	if strings.TrimSpace(in.ClientID) == "" {
		v.AddError(NoRedirect, "client_id", "is required")
		return v
	}
	client, err := s.GetClient(in.ClientID)
	if err != nil {
		v.AddError(NoRedirect, "client_id", "does not resolve to a known client")
		return v
	}
	v.Value.Client = client

	// Rule 2: redirect_uri required iff >1 configured; must be one of them.
	redirectURI, specified, ok := resolveRedirectURI(client, in.RedirectURI)
	if !ok {
		v.AddError(NoRedirect, "redirect_uri", "is required or does not match a registered URI")
		return v
	}
	v.Value.RedirectURI = redirectURI
	v.Value.RedirectSpecified = specified

	// From here on redirect_uri is trusted; every further failure can redirect.

	// Rule 3: response_type.
	switch in.ResponseType {
	case "":
		v.AddError(InvalidBeforeRedirect, "response_type", "invalid_request")
	case "code":
		v.Value.ResponseType = "code"
		if !client.SupportsGrantType(models.GrantTypeAuthorizationCode) {
			v.AddError(OtherChecks, "response_type", "unauthorized_client")
		}
	case "token":
		// Lexically recognized (implicit grant) but never supported by this core.
		v.AddError(OtherChecks, "response_type", "unsupported_response_type")
	default:
		v.AddError(InvalidBeforeRedirect, "response_type", "invalid_request")
	}

	// Rule 4: scope.
	scope, scopeErr := resolveScope(s, client, ownerID, in.Scope, opts.AppScopes)
	if scopeErr != "" {
		v.AddError(OtherChecks, "scope", scopeErr)
	} else {
		v.Value.Scope = scope
	}

	// Rule 5: PKCE.
	if codeChallengeErr := validatePKCE(client, opts.PKCEMode, in.CodeChallenge, in.CodeChallengeMethod); codeChallengeErr != "" {
		v.AddError(OtherChecks, "code_challenge", codeChallengeErr)
	} else {
		v.Value.CodeChallenge = in.CodeChallenge
		v.Value.CodeChallengeMethod = in.CodeChallengeMethod
	}

	// Rule 6: permission_granted.
	switch in.PermissionGranted {
	case "true":
		v.Value.PermissionGranted = true
	case "false":
		v.AddError(OtherChecks, "permission_granted", "access_denied")
	default:
		v.AddError(NoRedirect, "permission_granted", "is required and must be a boolean")
	}

	// Rule 7: state is echoed verbatim, without validation.
	v.Value.State = in.State

	return v
}

// resolveRedirectURI implements rule 2. Returns (resolved uri, was it
// explicitly specified by the caller, ok).
func resolveRedirectURI(client *models.Client, requested string) (string, bool, bool) {
	if requested == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], false, true
		}
		return "", false, false
	}
	if client.RedirectURIs.Contains(requested) {
		return requested, true, true
	}
	return "", false, false
}

// resolveScope implements rule 4, returning a non-empty OAuth error
// code on failure (invalid_request, invalid_scope or access_denied).
func resolveScope(
	s *store.Store,
	client *models.Client,
	ownerID string,
	rawScope string,
	appScopes models.StringArray,
) (models.StringArray, string) {
	if strings.TrimSpace(rawScope) == "" {
		existing, err := s.GetAuthorization(client.ID, ownerID)
		if err == nil {
			return existing.Scope, ""
		}
		// scope is required when no prior authorization exists.
		return nil, "invalid_request"
	}

	requested := splitScope(rawScope)
	if !appScopes.Subset(requested) {
		return nil, "invalid_scope"
	}
	if !client.Scope.Subset(requested) {
		return nil, "access_denied"
	}
	return models.StringArray(requested), ""
}

func splitScope(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// validatePKCE implements rule 5, returning a non-empty OAuth error
// code on failure.
func validatePKCE(client *models.Client, mode PKCEMode, challenge, method string) string {
	required := mode == PKCEAll || (mode == PKCEPublic && client.IsPublic())
	if !required && challenge == "" {
		return ""
	}
	if required && challenge == "" {
		return "invalid_request"
	}
	if challenge != "" && method != "S256" {
		return "invalid_request"
	}
	return ""
}
