package bot

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// AccessKey holds the stored representation of a bot access key: a hash for
// verification and a short prefix for display.
type AccessKey struct {
	Hash   string
	Prefix string
}

// GenerateAccessKey creates a new access key with the "bk_" prefix followed
// by 32 URL-safe random characters. It returns the AccessKey struct and the
// full plaintext key, which is shown once and never stored.
func GenerateAccessKey() (AccessKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return AccessKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	random := base64.RawURLEncoding.EncodeToString(b)
	plaintext := "bk_" + random

	key := AccessKey{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:10],
	}

	return key, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
