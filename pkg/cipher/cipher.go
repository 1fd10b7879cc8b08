// Package cipher provides the authenticated-encryption envelope used by the
// credential vault to store upstream tokens at rest.
package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// keySize is the key length chacha20poly1305 requires (256 bits).
const keySize = chacha20poly1305.KeySize

// deriveKey pads/cycles the key string's bytes to fill a 32-byte buffer.
// This is a naive KDF, not Argon2/PBKDF2/HKDF: it is preserved deliberately
// for on-disk format compatibility. See DESIGN.md's Open Questions.
func deriveKey(key string) [keySize]byte {
	var out [keySize]byte
	kb := []byte(key)
	if len(kb) == 0 {
		return out
	}
	for i := range out {
		out[i] = kb[i%len(kb)]
	}
	return out
}

// Encrypt seals plaintext under key and returns base64(nonce || ciphertext||tag).
// A fresh random nonce is generated on every call.
func Encrypt(plaintext, key string) (string, error) {
	derived := deriveKey(key)

	aead, err := chacha20poly1305.New(derived[:])
	if err != nil {
		return "", gatewayerr.Internal("cipher init failed: " + err.Error())
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", gatewayerr.Internal("nonce generation failed: " + err.Error())
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	envelope := append(nonce, sealed...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens an envelope produced by Encrypt under key.
func Decrypt(envelope, key string) (string, error) {
	derived := deriveKey(key)

	aead, err := chacha20poly1305.New(derived[:])
	if err != nil {
		return "", gatewayerr.Internal("cipher init failed: " + err.Error())
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", gatewayerr.Internal("envelope base64 decode failed: " + err.Error())
	}

	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize {
		return "", gatewayerr.Internal("envelope shorter than nonce size")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", gatewayerr.Internal("AEAD verification failed: " + err.Error())
	}

	if !utf8.Valid(plaintext) {
		return "", gatewayerr.Internal("decrypted plaintext is not valid UTF-8")
	}

	return string(plaintext), nil
}
