package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// magicKey is the fixed literal key the source uses for at-rest token
// obfuscation (original_source/mc_launcher_core/src/account.rs's
// MAGIC_KEY = "1145141919810"). Preserved verbatim: spec.md §9 treats this
// as a known weakness, not a design to improve on — "anyone with the binary
// can decrypt" is explicitly called out as the accepted tradeoff.
const magicKey = "1145141919810"

// pbkdf2Salt is a fixed salt for the key-stretching step. A per-install
// random salt would defeat the source's intentionally-reproducible
// decrypt-or-fallback-to-plaintext behavior needed for migration (see
// decryptToken), so it stays fixed like the key itself.
var pbkdf2Salt = []byte("mc-launcher-engine-token-cipher")

func deriveKey() []byte {
	return pbkdf2.Key([]byte(magicKey), pbkdf2Salt, 4096, 32, sha256.New)
}

// encryptToken AES-256-GCM-encrypts plaintext under the fixed key and
// base64-encodes the nonce-prefixed ciphertext, per spec.md §4.7/§9's
// "symmetrically obfuscated with a fixed key".
func encryptToken(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	block, err := aes.NewCipher(deriveKey())
	if err != nil {
		return plaintext
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return plaintext
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return plaintext
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// decryptToken reverses encryptToken. On any failure to base64-decode or
// decrypt, it returns the input unchanged — the source's tolerant
// "backward-compatibility path for plaintext tokens" (spec.md §4.7),
// preserved here deliberately for migration from pre-obfuscation stores.
func decryptToken(encoded string) string {
	if encoded == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	block, err := aes.NewCipher(deriveKey())
	if err != nil {
		return encoded
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return encoded
	}
	if len(raw) < gcm.NonceSize() {
		return encoded
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return encoded
	}
	return string(plaintext)
}
