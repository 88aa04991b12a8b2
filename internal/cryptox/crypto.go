// Package cryptox holds client-side key derivation.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// PreHashIterations is the PBKDF2 work factor of PreHash.
const PreHashIterations = 100_000

// PreHash derives the value a client sends in place of the raw password.
// The salt is the account UUID, so the same password yields a different
// value per account and the server never sees the original.
func PreHash(password []byte, userID uuid.UUID) string {
	key := pbkdf2.Key(password, userID[:], PreHashIterations, sha256.Size, sha256.New)
	return hex.EncodeToString(key)
}
