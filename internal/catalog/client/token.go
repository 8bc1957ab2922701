package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints short-lived HS256 bearer tokens for backend calls
type TokenSigner struct {
	secret  []byte
	subject string
	ttl     time.Duration
}

// NewTokenSigner returns nil when secret is empty, meaning requests go out unauthenticated
func NewTokenSigner(secret, subject string, ttl time.Duration) *TokenSigner {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenSigner{secret: []byte(secret), subject: subject, ttl: ttl}
}

// Sign creates a fresh token
func (s *TokenSigner) Sign() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		Issuer:    "product-console",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign backend token: %w", err)
	}
	return token, nil
}

// Verify parses a token signed by s; used by tests and the fake backend
func (s *TokenSigner) Verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid backend token: %w", err)
	}
	return claims, nil
}
