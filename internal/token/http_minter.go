package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// HTTPMinter delegates minting and refresh verification to an
// external session/token service over HTTP, for hosts that already
// run a separate signing service instead of this package's
// LocalMinter. It is built on the same retrying HTTP client the
// teacher's service-to-service calls use (internal/client.CreateRetryClient).
type HTTPMinter struct {
	client    *retry.Client
	mintURL   string
	verifyURL string
}

// NewHTTPMinter wraps an already-constructed retry client (see
// internal/client.CreateRetryClient) with the two endpoints it calls.
func NewHTTPMinter(client *retry.Client, baseURL string) *HTTPMinter {
	return &HTTPMinter{
		client:    client,
		mintURL:   baseURL + "/internal/sessions/mint",
		verifyURL: baseURL + "/internal/sessions/verify-refresh",
	}
}

type mintRequest struct {
	UserID                string         `json:"user_id"`
	Transport             string         `json:"transport"`
	SessionType           string         `json:"session_type"`
	AccessClaimOverrides  map[string]any `json:"access_claim_overrides,omitempty"`
	RefreshClaimOverrides map[string]any `json:"refresh_claim_overrides,omitempty"`
	IssueRefreshToken     bool           `json:"issue_refresh_token"`
}

type mintResponse struct {
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresAt int64  `json:"refresh_expires_at,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Mint implements Minter by POSTing to the external session service.
func (h *HTTPMinter) Mint(args UpsertArgs) (Bundle, error) {
	body, err := json.Marshal(mintRequest{
		UserID:                args.UserID,
		Transport:             args.Transport,
		SessionType:           args.SessionType,
		AccessClaimOverrides:  args.AccessClaimOverrides,
		RefreshClaimOverrides: args.RefreshClaimOverrides,
		IssueRefreshToken:     args.IssueRefreshToken,
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("token: marshal mint request: %w", err)
	}

	var out mintResponse
	if err := h.post(h.mintURL, body, &out); err != nil {
		return Bundle{}, err
	}
	if out.Error != "" {
		return Bundle{}, fmt.Errorf("token: remote mint failed: %s", out.Error)
	}

	return bundleFromResponse(out), nil
}

type verifyRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyResponse struct {
	Subject     string `json:"sub"`
	ClientID    string `json:"cid"`
	SessionType string `json:"styp"`
	Error       string `json:"error,omitempty"`
}

// Verify implements RefreshVerifier by POSTing to the external
// session service. Any non-empty Error is surfaced as an opaque
// error; the HTTP handler maps every RefreshVerifier error to
// invalid_grant regardless of which one it is.
func (h *HTTPMinter) Verify(rawToken string) (RefreshClaims, error) {
	body, err := json.Marshal(verifyRequest{RefreshToken: rawToken})
	if err != nil {
		return RefreshClaims{}, fmt.Errorf("token: marshal verify request: %w", err)
	}

	var out verifyResponse
	if err := h.post(h.verifyURL, body, &out); err != nil {
		return RefreshClaims{}, err
	}
	if out.Error != "" {
		return RefreshClaims{}, fmt.Errorf("token: remote verify failed: %s", out.Error)
	}

	return RefreshClaims{Subject: out.Subject, ClientID: out.ClientID, SessionType: out.SessionType}, nil
}

func (h *HTTPMinter) post(url string, body []byte, out any) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("token: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("token: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("token: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("token: remote returned %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("token: decode response: %w", err)
	}
	return nil
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func bundleFromResponse(out mintResponse) Bundle {
	b := Bundle{AccessToken: out.AccessToken}
	if out.AccessExpiresAt > 0 {
		b.AccessExpiresAt = unixToTime(out.AccessExpiresAt)
	}
	if out.RefreshToken != "" {
		b.RefreshToken = out.RefreshToken
		b.RefreshExpiresAt = unixToTime(out.RefreshExpiresAt)
	}
	return b
}
