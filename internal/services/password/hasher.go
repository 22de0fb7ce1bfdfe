// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password hashes and checks user passwords.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxBytes is the longest password bcrypt accepts.
const MaxBytes = 72

// dummyHash is compared against when there is no stored hash so that unknown
// users take as long as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Hasher stores passwords as bcrypt hashes.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher. A cost of zero uses bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashPassword returns the bcrypt hash of password. Passwords longer than
// MaxBytes are rejected with a *PolicyError.
func (h *Hasher) HashPassword(password string) (string, error) {
	if len(password) > MaxBytes {
		return "", &PolicyError{Violations: []Violation{{
			Code:    "max_length",
			Message: fmt.Sprintf("Password must be at most %d bytes long.", MaxBytes),
		}}}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether supplied matches the stored hash.
func (h *Hasher) VerifyPassword(stored, supplied string) bool {
	if stored == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(supplied))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
}
