package bootstrap

import (
	"fmt"

	"github.com/go-authgate/oauth2core/internal/client"
	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/token"
)

// initializeMinter wires the Minter/RefreshVerifier pair
// (C6) per cfg.TokenProviderMode. A host-supplied VerifyRefreshToken
// overrides whichever verifier the provider mode would otherwise
// build (spec.md §6.5).
func initializeMinter(cfg *config.Config, db *store.Store) (token.Minter, token.RefreshVerifier, error) {
	var minter token.Minter
	var verifier token.RefreshVerifier

	switch cfg.TokenProviderMode {
	case "http_api":
		retryClient, err := client.CreateRetryClient(
			cfg.TokenAPIAuthMode,
			cfg.TokenAPIAuthSecret,
			cfg.TokenAPITimeout,
			false,
			cfg.TokenAPIMaxRetries,
			cfg.TokenAPIRetryDelay,
			cfg.TokenAPIMaxRetryDelay,
			cfg.TokenAPIAuthHeader,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: create token api client: %w", err)
		}
		httpMinter := token.NewHTTPMinter(retryClient, cfg.TokenAPIURL)
		minter, verifier = httpMinter, httpMinter

	default: // "local"
		localMinter, err := token.NewLocalMinter(
			db.DB(),
			[]byte(cfg.SessionSecret),
			cfg.AccessTokenExpiration,
			cfg.RefreshTokenExpiration,
			cfg.EnableTokenRotation,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: initialize local minter: %w", err)
		}
		minter, verifier = localMinter, localMinter
	}

	if cfg.VerifyRefreshToken != nil {
		verifier = cfg.VerifyRefreshToken
	}

	return minter, verifier, nil
}
