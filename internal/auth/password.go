package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tagfer/tagfer-server/internal/apperror"
)

// DefaultPasswordCost is the bcrypt work factor used in production.
const DefaultPasswordCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs are rejected
// rather than silently truncated.
const maxPasswordBytes = 72

// PasswordService hashes and verifies account passwords with bcrypt.
// The salt and cost are embedded in the hash, so a single column holds
// everything needed for verification:
//
//	$2a$12$<22-char salt><31-char hash>
type PasswordService struct {
	cost int
}

// NewPasswordService returns a service using cost, or DefaultPasswordCost
// when cost is outside bcrypt's accepted range. Tests pass bcrypt.MinCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and apperror.WrongPassword
// when it does not.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperror.WrongPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
