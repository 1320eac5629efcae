// Package auth holds the credential primitives of the server: signed tokens,
// password hashing, the HTTP guards for the shared app secret and session
// tokens, and the Twitter OAuth client.
//
// SIGNED TOKENS:
// Sessions themselves are opaque random ids stored in the database. JWTs are
// used only for short-lived values handed to the client and returned later
// without server-side state:
//   - suggestion page tokens (audience "page"), carrying the pagination cursor
//   - password-reset tokens (audience "reset"), carrying the tagferId and a
//     binding to the password they may replace
//
// The audience claim keeps one kind of token from being replayed as another.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "tagfer"

// Token audiences.
const (
	AudiencePage  = "page"
	AudienceReset = "reset"
)

// TokenService signs and validates HS256 tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: TAGFER_TOKEN_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

type claims struct {
	jwt.RegisteredClaims
	// Binding ties the token to server state; the token stops being useful
	// once that state changes.
	Binding string `json:"bnd,omitempty"`
}

// Generate signs a token for subject, valid for d and only for audience.
func (s *TokenService) Generate(audience, subject string, d time.Duration) (string, error) {
	return s.GenerateBound(audience, subject, "", d)
}

// GenerateBound is Generate with a binding claim. ValidateBound returns it
// for the caller to compare against current state.
func (s *TokenService) GenerateBound(audience, subject, binding string, d time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject must not be empty")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Binding: binding,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry, issuer and audience and returns the
// token's subject.
func (s *TokenService) Validate(audience, tokenStr string) (string, error) {
	subject, _, err := s.ValidateBound(audience, tokenStr)
	return subject, err
}

// ValidateBound is Validate that also returns the binding claim.
func (s *TokenService) ValidateBound(audience, tokenStr string) (subject, binding string, err error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", fmt.Errorf("auth: token expired: %w", err)
		}
		return "", "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", "", errors.New("auth: token has no subject")
	}
	return c.Subject, c.Binding, nil
}
