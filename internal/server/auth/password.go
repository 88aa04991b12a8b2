package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost  int
	decoy []byte
}

// NewHasher returns a Hasher using cost. Costs outside bcrypt's accepted
// range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	decoy, _ := bcrypt.GenerateFromPassword([]byte("decoy"), cost)
	return &Hasher{cost: cost, decoy: decoy}
}

// Hash returns a salted bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", common.ErrorValidation, maxPasswordBytes)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify compares password against a stored hash in constant time.
// A mismatch is (false, nil). An error means the stored hash itself is
// unusable.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	if len(password) > maxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("stored password hash: %w", err)
	}
}

// Decoy spends the same work as Verify against a throwaway hash. Login
// calls it for unknown users so both failures take equally long.
func (h *Hasher) Decoy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(password))
}
