// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 8
	MaxLength = 72 // bcrypt ignores bytes beyond this
)

var (
	ErrTooShort = fmt.Errorf("password must be at least %d characters", MinLength)
	ErrTooLong  = fmt.Errorf("password must be at most %d bytes", MaxLength)
	ErrMismatch = errors.New("password does not match")
)

// dummyHash is compared against when the account does not exist so that
// unknown and known emails take the same time to reject.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOa7Ue6DEwOFcC3tV8dX5qb2.6u.3QiHu")

type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. A cost of 0 uses bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func Validate(plain string) error {
	if len(plain) < MinLength {
		return ErrTooShort
	}
	if len(plain) > MaxLength {
		return ErrTooLong
	}
	return nil
}

func (h *Hasher) Hash(plain string) (string, error) {
	if err := Validate(plain); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare returns ErrMismatch when plain does not match hash. An empty hash
// is compared against a dummy value and always mismatches.
func (h *Hasher) Compare(hash, plain string) error {
	target := []byte(hash)
	if hash == "" {
		target = dummyHash
	}
	err := bcrypt.CompareHashAndPassword(target, []byte(plain))
	if hash == "" || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}
