package bootstrap

import (
	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/handlers"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/services"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/token"
)

// handlerSet holds the two HTTP handlers the core exposes (C4, C5).
type handlerSet struct {
	authorize *handlers.AuthorizeHandler
	token     *handlers.TokenHandler
}

// initializeHandlers wires the store, crypto keys, minter, audit
// service, and metrics recorder into the authorize/token handlers.
func initializeHandlers(
	cfg *config.Config,
	db *store.Store,
	keys *cryptoKeys,
	minter token.Minter,
	verifier token.RefreshVerifier,
	audit *services.AuditService,
	recorder metrics.Recorder,
) handlerSet {
	return handlerSet{
		authorize: handlers.NewAuthorizeHandler(db, keys.cipher, keys.codeHMAC, audit, recorder, cfg),
		token:     handlers.NewTokenHandler(db, keys.cipher, keys.codeHMAC, minter, verifier, audit, recorder, cfg),
	}
}
