package bootstrap

import (
	"fmt"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/crypto"
)

// cryptoKeys holds the two keyed primitives derived from
// config.BaseSecret at startup (spec.md §4.1/§5: immutable for the
// process lifetime, never recomputed per request). cipher covers both
// encrypted-at-rest fields (client.secret, grant.code_challenge);
// codeHMAC is the one-way hash over grant.code.
type cryptoKeys struct {
	cipher   *crypto.FieldCipher
	codeHMAC *crypto.CodeHMAC
}

// initializeCrypto derives the field cipher and code HMAC keys via
// HKDF-SHA256 over cfg.BaseSecret.
func initializeCrypto(cfg *config.Config) (*cryptoKeys, error) {
	base := []byte(cfg.BaseSecret)

	cipher, err := crypto.NewFieldCipher(base, "field")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: derive field cipher key: %w", err)
	}
	codeHMAC, err := crypto.NewCodeHMAC(base, "code")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: derive grant code key: %w", err)
	}

	return &cryptoKeys{cipher: cipher, codeHMAC: codeHMAC}, nil
}
