package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// TokenBytes is the entropy of every opaque token (256 bits).
const TokenBytes = 32

// IssueToken returns a fresh URL-safe bearer token. It is used for session
// tokens and password reset tokens alike.
func IssueToken() (string, error) {
	return issueToken(rand.Reader)
}

func issueToken(r io.Reader) (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the at-rest form of a token: hex(SHA-256(token)).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
