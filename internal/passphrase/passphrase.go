// Package passphrase hashes and verifies the optional secondary secret
// gating video playback. bcrypt keeps the comparison constant-time and
// deliberately slow.
package passphrase

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when the passphrase does not match the hash.
var ErrMismatch = errors.New("passphrase does not match")

// Hasher wraps bcrypt with a configured cost.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher. Costs outside bcrypt's valid range fall back
// to the bcrypt default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the one-way hash of a passphrase.
func (h *Hasher) Hash(passphrase string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(passphrase), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a passphrase against a stored hash.
// Returns ErrMismatch when the passphrase is wrong.
func (h *Hasher) Verify(hash, passphrase string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("verify passphrase: %w", err)
	}
	return nil
}
