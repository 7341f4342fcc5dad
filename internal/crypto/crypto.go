// Package crypto provides the reversible-encryption, single-use-code
// hashing, and constant-time comparison primitives the authorization
// server core needs to store client secrets and PKCE code challenges
// without ever comparing them with a plain ==.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sentinel (four zero bytes) is prepended to every plaintext before
// encryption so that decrypting with the wrong derived key is caught
// even in the (very unlikely) case the AEAD tag alone would not catch it.
var sentinel = [4]byte{}

// nonceSize is the length of the random nonce prepended to every
// envelope.
const nonceSize = 16

// FieldCipher encrypts and decrypts a single database field using
// AES-256-GCM with a key derived from one server base secret via
// HKDF-SHA256. A distinct info string yields a distinct derived key;
// the server builds one FieldCipher (info "field") and uses it for
// both client secrets and code challenges, so those two fields share
// one key.
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher derives a 32-byte key from baseSecret using HKDF-SHA256
// with the given info string and builds an AES-256-GCM cipher from it.
func NewFieldCipher(baseSecret []byte, info string) (*FieldCipher, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, baseSecret, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

// Encrypt returns nonce || ciphertext || tag, ready to store verbatim
// in a bytea/blob column.
func (f *FieldCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, f.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	tagged := append(sentinel[:], plaintext...)
	return f.gcm.Seal(nonce, nonce, tagged, nil), nil
}

// Decrypt reverses Encrypt, rejecting ciphertexts that are too short,
// fail the AEAD tag check, or decrypt to a plaintext missing the
// sentinel prefix (i.e. were encrypted under a different field key).
func (f *FieldCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := f.gcm.NonceSize()
	if len(ciphertext) < ns {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	plain, err := f.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	if len(plain) < len(sentinel) || subtle.ConstantTimeCompare(plain[:len(sentinel)], sentinel[:]) != 1 {
		return nil, errors.New("crypto: sentinel mismatch")
	}
	return plain[len(sentinel):], nil
}

// EncryptString/DecryptString are convenience wrappers that base64url
// encode the envelope so it can sit in a text column.
func (f *FieldCipher) EncryptString(plaintext string) (string, error) {
	ct, err := f.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

func (f *FieldCipher) DecryptString(encoded string) (string, error) {
	ct, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decode envelope: %w", err)
	}
	plain, err := f.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// CodeHMAC derives a dedicated HMAC key from baseSecret via HKDF-SHA256
// and returns a keyed HMAC-SHA256 hasher for hashing single-use grant
// codes. Unlike FieldCipher, this is intentionally one-way: the grant
// code column is looked up by hash equality and is never decrypted.
type CodeHMAC struct {
	key []byte
}

func NewCodeHMAC(baseSecret []byte, info string) (*CodeHMAC, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, baseSecret, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypto: derive hmac key: %w", err)
	}
	return &CodeHMAC{key: key}, nil
}

// Sum returns the URL-safe base64 keyed HMAC-SHA256 of code.
func (h *CodeHMAC) Sum(code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(code))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEqual compares two strings in constant time, for use
// wherever a secret is compared against a caller-supplied value
// (client_secret, code_verifier). Returns false for differing lengths
// without leaking timing information about where they differ.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomToken returns a CSPRNG-generated, URL-safe, unpadded
// base64 string decoding to nBytes of entropy.
func RandomToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
