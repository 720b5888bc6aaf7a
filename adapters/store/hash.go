package store

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultLockoutThreshold is the number of consecutive failures that lock an account
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long password login stays suspended
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutPolicy is owned by the credential stores, not by the auth flow
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// WithDefaults fills zero fields
func (p LockoutPolicy) WithDefaults() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// BcryptHasher implements password hashing via bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt-based hasher with default fallback cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Matches reports whether password hashes to hash. Only malformed hashes are errors.
func (h *BcryptHasher) Matches(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
