package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/crypto"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/services"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/token"
	"github.com/go-authgate/oauth2core/internal/validate"

	"github.com/gin-gonic/gin"
)

// maxTokenBodyBytes bounds the request body the token endpoint will
// read, per §4.5 ("sizes are bounded (≤1 MB)").
const maxTokenBodyBytes = 1 << 20

// TokenHandler implements POST /token (C5).
type TokenHandler struct {
	store    *store.Store
	cipher   *crypto.FieldCipher
	codeHMAC *crypto.CodeHMAC
	minter   token.Minter
	verifier token.RefreshVerifier
	audit    *services.AuditService
	metrics  metrics.Recorder
	cfg      *config.Config
}

func NewTokenHandler(
	s *store.Store,
	cipher *crypto.FieldCipher,
	codeHMAC *crypto.CodeHMAC,
	minter token.Minter,
	verifier token.RefreshVerifier,
	audit *services.AuditService,
	m metrics.Recorder,
	cfg *config.Config,
) *TokenHandler {
	return &TokenHandler{
		store:    s,
		cipher:   cipher,
		codeHMAC: codeHMAC,
		minter:   minter,
		verifier: verifier,
		audit:    audit,
		metrics:  m,
		cfg:      cfg,
	}
}

// Token handles POST /token. Content-Type, client authentication, and
// grant-type dispatch each map to a specific HTTP status per §4.5/§6.2.
func (h *TokenHandler) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	if ct := mediaType(c.GetHeader("Content-Type")); ct != "application/x-www-form-urlencoded" {
		c.Status(http.StatusUnsupportedMediaType)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTokenBodyBytes)

	var raw validate.TokenRawInput
	if err := c.ShouldBind(&raw); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		h.errorJSON(c, "invalid_request", "malformed request body")
		return
	}
	if user, pass, ok := c.Request.BasicAuth(); ok {
		raw.BasicUser, raw.BasicPass, raw.HasBasic = user, pass, true
	}

	client, authErr := validate.AuthenticateClient(h.store, h.cipher, raw)
	if authErr != nil {
		h.metrics.RecordClientAuthFailure(authErr.Code)
		if authErr.Status == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "Basic")
			c.String(http.StatusUnauthorized, "invalid_client")
			return
		}
		h.errorJSON(c, authErr.Code, "client authentication failed")
		return
	}

	grantTypeResult := validate.ValidateGrantType(client, raw.GrantType)
	if !grantTypeResult.Valid() {
		field, code := firstTokenError(grantTypeResult.Errors)
		h.errorJSON(c, code, field+": "+code)
		return
	}

	switch grantTypeResult.Value {
	case models.GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(c, client, raw)
	case validate.GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c, client, raw)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(c *gin.Context, client *models.Client, raw validate.TokenRawInput) {
	grant, err := h.store.GetGrantByCodeHash(h.codeHMAC.Sum(raw.Code))
	if err != nil {
		h.errorJSON(c, "invalid_grant", "code: not found")
		return
	}

	result := validate.ValidateAuthorizationCodeGrant(grant, client, raw, h.cipher)
	if !result.Valid() {
		field, code := firstTokenError(result.Errors)
		h.errorJSON(c, code, field+": "+code)
		return
	}

	consumed, err := h.store.DeleteGrant(grant.ID)
	if err != nil {
		h.metrics.RecordDatabaseQueryError("delete_grant")
		h.serverError(c, "delete grant", err)
		return
	}
	if !consumed {
		if err := h.audit.LogSync(c.Request.Context(), services.AuditLogEntry{
			EventType:    models.EventGrantReplayRejected,
			Severity:     models.SeverityWarning,
			ActorIP:      c.ClientIP(),
			ResourceType: models.ResourceGrant,
			ResourceID:   client.ID,
			Action:       "token",
			Success:      false,
		}); err != nil {
			log.Printf("token: audit grant replay: %v", err)
		}
		h.errorJSON(c, "invalid_grant", "code: not found")
		return
	}

	bundle, err := h.minter.Mint(token.UpsertArgs{
		UserID:      grant.ResourceOwnerID,
		Transport:   "bearer",
		SessionType: "oauth2",
		AccessClaimOverrides: map[string]any{
			"cid":   client.ID,
			"scope": []string(result.Value.RequestedScope),
		},
		RefreshClaimOverrides: map[string]any{"cid": client.ID},
		IssueRefreshToken:     h.cfg.EnableRefreshTokens && client.SupportsGrantType(validate.GrantTypeRefreshToken),
	})
	if err != nil {
		h.serverError(c, "mint access token (authorization_code)", err)
		return
	}

	h.metrics.RecordGrantExchange(models.GrantTypeAuthorizationCode, "success")
	h.metrics.RecordTokenIssued("access", models.GrantTypeAuthorizationCode, 0, "local")
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    models.EventGrantExchanged,
		Severity:     models.SeverityInfo,
		ActorUserID:  grant.ResourceOwnerID,
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceToken,
		ResourceID:   client.ID,
		Action:       "token",
		Success:      true,
	})

	h.respondBundle(c, bundle, result.Value.RequestedScope)
}

func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context, client *models.Client, raw validate.TokenRawInput) {
	claims, err := h.verifier.Verify(raw.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrRefreshTokenReused) {
			h.audit.Log(c.Request.Context(), services.AuditLogEntry{
				EventType:    models.EventRefreshTokenReused,
				Severity:     models.SeverityCritical,
				ActorIP:      c.ClientIP(),
				ResourceType: models.ResourceToken,
				ResourceID:   client.ID,
				Action:       "token",
				Success:      false,
				ErrorMessage: err.Error(),
			})
		}
		h.errorJSON(c, "invalid_grant", "refresh_token: invalid or expired")
		return
	}
	if claims.ClientID != client.ID {
		h.errorJSON(c, "invalid_grant", "client_id: does not match refresh token")
		return
	}

	auth, err := h.store.GetAuthorization(client.ID, claims.Subject)
	if err != nil {
		h.errorJSON(c, "invalid_grant", "authorization: revoked")
		return
	}

	result := validate.ValidateRefreshTokenGrant(client, auth.Scope, raw)
	if !result.Valid() {
		field, code := firstTokenError(result.Errors)
		h.errorJSON(c, code, field+": "+code)
		return
	}

	bundle, err := h.minter.Mint(token.UpsertArgs{
		UserID:      claims.Subject,
		Transport:   "bearer",
		SessionType: "oauth2",
		AccessClaimOverrides: map[string]any{
			"cid":   client.ID,
			"scope": []string(result.Value.RequestedScope),
		},
		RefreshClaimOverrides: map[string]any{"cid": client.ID},
		IssueRefreshToken:     h.cfg.EnableRefreshTokens,
	})
	if err != nil {
		h.serverError(c, "mint access token (refresh_token)", err)
		return
	}

	h.metrics.RecordTokenRefreshed(true)
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    models.EventTokenRefreshed,
		Severity:     models.SeverityInfo,
		ActorUserID:  claims.Subject,
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceToken,
		ResourceID:   client.ID,
		Action:       "token",
		Success:      true,
	})

	h.respondBundle(c, bundle, result.Value.RequestedScope)
}

func (h *TokenHandler) respondBundle(c *gin.Context, bundle token.Bundle, scope models.StringArray) {
	resp := gin.H{
		"access_token": bundle.AccessToken,
		"expires_in":   int(time.Until(bundle.AccessExpiresAt).Seconds()),
		"scope":        strings.Join(scope, " "),
		"token_type":   "bearer",
	}
	if bundle.RefreshToken != "" {
		resp["refresh_token"] = bundle.RefreshToken
		resp["refresh_expires_in"] = int(time.Until(bundle.RefreshExpiresAt).Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TokenHandler) errorJSON(c *gin.Context, code, description string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             code,
		"error_description": description,
	})
}

// serverError handles unexpected store/minter failures per §7: 500
// with no body, details logged rather than returned to the client.
func (h *TokenHandler) serverError(c *gin.Context, context string, err error) {
	log.Printf("token: %s: %v", context, err)
	c.Status(http.StatusInternalServerError)
}

// OptionsPreflight answers OPTIONS / with 204. In the router it sits
// behind middleware.TokenEndpointCORS, which sets the CORS headers and
// itself answers every OPTIONS request with 204 and aborts, so this
// handler only runs when that middleware is not in front of it.
func (h *TokenHandler) OptionsPreflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// firstTokenError picks one field/code pair out of a token-endpoint
// validation failure; unlike the authorize endpoint there is no
// outcome precedence to apply, so the first error found is reported.
func firstTokenError(errs validate.FieldErrors) (field, code string) {
	for f, msgs := range errs {
		if len(msgs) > 0 {
			return f, msgs[0]
		}
	}
	return "invalid_request", "invalid_request"
}

// mediaType strips any parameters (e.g. ";charset=utf-8") from a
// Content-Type header value.
func mediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}
