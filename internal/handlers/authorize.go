// Package handlers implements the two HTTP endpoints the authorization
// server core exposes: POST /authorize (consent decision -> grant) and
// POST /token (grant or refresh token -> token bundle).
package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/crypto"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/middleware"
	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/services"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/validate"

	"github.com/gin-gonic/gin"
)

// AuthorizeHandler implements POST /authorize (C4).
type AuthorizeHandler struct {
	store    *store.Store
	cipher   *crypto.FieldCipher
	codeHMAC *crypto.CodeHMAC
	audit    *services.AuditService
	metrics  metrics.Recorder
	cfg      *config.Config
}

func NewAuthorizeHandler(
	s *store.Store,
	cipher *crypto.FieldCipher,
	codeHMAC *crypto.CodeHMAC,
	audit *services.AuditService,
	m metrics.Recorder,
	cfg *config.Config,
) *AuthorizeHandler {
	return &AuthorizeHandler{
		store:    s,
		cipher:   cipher,
		codeHMAC: codeHMAC,
		audit:    audit,
		metrics:  m,
		cfg:      cfg,
	}
}

// redirectFieldPriority orders which field's error becomes the single
// error code in a redirect envelope when more than one is set; earlier
// checks run first so their failures are the more "root cause" one.
var redirectFieldPriority = []string{
	"response_type", "scope", "code_challenge", "permission_granted",
}

// Authorize handles POST /authorize. It never returns an HTTP redirect
// itself; every outcome is a 200 or 400 JSON body, per §4.4, or a 500
// JSON body when issuing the grant fails.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	ownerID := middleware.Principal(c)

	var raw validate.AuthorizeRawInput
	if err := c.ShouldBind(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"errors": gin.H{"request": []string{"malformed request body"}},
		})
		return
	}

	result := validate.ValidateAuthorize(h.store, raw, ownerID, validate.AuthorizeOptions{
		AppScopes: h.cfg.Scopes,
		PKCEMode:  validate.PKCEMode(h.cfg.EnforcePKCE),
	})

	if !result.Valid() {
		h.respondError(c, result)
		return
	}

	h.respondGrant(c, result.Value, ownerID)
}

// respondError shapes a validation failure per its Outcome: NoRedirect
// is a 400 JSON error map, everything else is a 200 redirect envelope
// carrying an OAuth error query string.
func (h *AuthorizeHandler) respondError(c *gin.Context, result validate.Validated[validate.AuthorizeRequest]) {
	if result.Outcome == validate.NoRedirect {
		c.JSON(http.StatusBadRequest, gin.H{"errors": result.Errors})
		return
	}

	h.metrics.RecordGrantIssued(false)
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    models.EventAuthorizationDenied,
		Severity:     models.SeverityWarning,
		ActorUserID:  middleware.Principal(c),
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceAuthorization,
		ResourceID:   result.Value.Client.ID,
		Action:       "authorize",
		Success:      false,
		ErrorMessage: fmt.Sprint(result.Errors),
	})

	field, code := firstRedirectError(result.Errors)
	q := url.Values{}
	q.Set("error", code)
	q.Set("error_description", field+": "+code)
	if result.Value.State != "" {
		q.Set("state", result.Value.State)
	}

	c.JSON(http.StatusOK, gin.H{
		"redirect_to": result.Value.RedirectURI + "?" + q.Encode(),
	})
}

// firstRedirectError picks the single field/code pair to surface in a
// redirect envelope, per the priority order a request is validated in.
func firstRedirectError(errs validate.FieldErrors) (field, code string) {
	for _, f := range redirectFieldPriority {
		if msgs, ok := errs[f]; ok && len(msgs) > 0 {
			return f, msgs[0]
		}
	}
	for f, msgs := range errs {
		if len(msgs) > 0 {
			return f, msgs[0]
		}
	}
	return "invalid_request", "invalid_request"
}

// respondGrant implements Authorize+RespondRedirect on the success path:
// upsert the authorization, issue a single-use grant, and return the
// redirect envelope carrying the grant code.
func (h *AuthorizeHandler) respondGrant(c *gin.Context, req validate.AuthorizeRequest, ownerID string) {
	auth, err := h.store.UpsertAuthorization(req.Client.ID, ownerID, req.Scope)
	if err != nil {
		h.metrics.RecordDatabaseQueryError("upsert_authorization")
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"server": []string{"server_error"}}})
		return
	}

	code, err := crypto.RandomToken(32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"server": []string{"server_error"}}})
		return
	}

	var challengeCiphertext, challengeMethod string
	if req.CodeChallenge != "" {
		challengeCiphertext, err = h.cipher.EncryptString(req.CodeChallenge)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"server": []string{"server_error"}}})
			return
		}
		challengeMethod = req.CodeChallengeMethod
	}

	grant := &models.Grant{
		CodeHash:             h.codeHMAC.Sum(code),
		Type:                 models.GrantTypeAuthorizationCode,
		AuthorizationID:      auth.ID,
		ResourceOwnerID:      ownerID,
		RedirectURI:          req.RedirectURI,
		RedirectURISpecified: req.RedirectSpecified,
		ChallengeCiphertext:  challengeCiphertext,
		ChallengeMethod:      challengeMethod,
		ExpiresAt:            time.Now().Add(h.cfg.GrantTTL),
	}
	if err := h.store.InsertGrant(grant); err != nil {
		h.metrics.RecordDatabaseQueryError("insert_grant")
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"server": []string{"server_error"}}})
		return
	}

	h.metrics.RecordGrantIssued(true)
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    models.EventGrantIssued,
		Severity:     models.SeverityInfo,
		ActorUserID:  ownerID,
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceGrant,
		ResourceID:   req.Client.ID,
		Action:       "authorize",
		Success:      true,
	})

	q := url.Values{}
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}

	c.JSON(http.StatusOK, gin.H{
		"redirect_to": req.RedirectURI + "?" + q.Encode(),
	})
}
