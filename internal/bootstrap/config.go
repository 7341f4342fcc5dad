package bootstrap

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-authgate/oauth2core/internal/config"
)

// validateAllConfiguration fails fast on a config that would otherwise
// surface as a confusing runtime error deep inside a handler.
func validateAllConfiguration(cfg *config.Config) {
	if err := validateTokenProviderConfig(cfg); err != nil {
		log.Fatalf("invalid token provider configuration: %v", err)
	}
	if len(cfg.Scopes) == 0 {
		log.Fatalf("invalid configuration: SCOPES must name at least one application scope")
	}
	switch cfg.EnforcePKCE {
	case config.PKCEEnforceAll, config.PKCEEnforcePublic, config.PKCEEnforceNo:
	default:
		log.Fatalf("invalid ENFORCE_PKCE: %s (must be: all, public, no)", cfg.EnforcePKCE)
	}
}

// validateTokenProviderConfig checks that required config is present for the selected token provider mode.
func validateTokenProviderConfig(cfg *config.Config) error {
	switch cfg.TokenProviderMode {
	case "http_api":
		if cfg.TokenAPIURL == "" {
			return errors.New("TOKEN_API_URL is required when TOKEN_PROVIDER_MODE=http_api")
		}
	case "local":
	default:
		return fmt.Errorf("invalid TOKEN_PROVIDER_MODE: %s (must be: local, http_api)", cfg.TokenProviderMode)
	}
	return nil
}
