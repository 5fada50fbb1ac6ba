package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// Stored credential format: "<salt hex>$<digest hex>".
const (
	DefaultIterations   = 100_000
	saltBytes           = 16
	digestBytes         = sha256.Size
	credentialSeparator = "$"
)

// PasswordHasher turns passwords into stored credentials and checks
// candidates against them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(stored, candidate string) bool
}

// PBKDF2Hasher implements PasswordHasher with PBKDF2-HMAC-SHA256. The hex
// text of the salt is used as the KDF salt.
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher returns a hasher using DefaultIterations.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{iterations: DefaultIterations}
}

// Hash salts and derives password. Two calls never return the same value.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt, err := common.MakeRandHexString(saltBytes)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := h.derive(password, salt)
	defer common.WipeByteArray(digest)
	return salt + credentialSeparator + hex.EncodeToString(digest), nil
}

// Verify recomputes the digest with the stored salt. A stored value that is
// not exactly "<32 hex>$<64 hex>" never matches.
func (h *PBKDF2Hasher) Verify(stored, candidate string) bool {
	salt, digestHex, ok := strings.Cut(stored, credentialSeparator)
	if !ok || len(salt) != saltBytes*2 || len(digestHex) != digestBytes*2 {
		return false
	}
	if _, err := hex.DecodeString(salt); err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}

	got := h.derive(candidate, salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (h *PBKDF2Hasher) derive(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), h.iterations, digestBytes, sha256.New)
}
