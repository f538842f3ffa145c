package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrTokenNotConfigured = errors.New("API token not configured")
	ErrInvalidToken       = errors.New("invalid API token")
)

// TokenValidator checks bearer tokens against the configured API token
type TokenValidator struct {
	expected string
}

// NewTokenValidator creates a validator for the given API token
func NewTokenValidator(expected string) *TokenValidator {
	return &TokenValidator{expected: expected}
}

// ValidateToken validates an API token
func (v *TokenValidator) ValidateToken(token string) error {
	if v.expected == "" {
		return ErrTokenNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.expected)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// ValidateHeader extracts the bearer token from an Authorization header and validates it
func (v *TokenValidator) ValidateHeader(authHeader string) error {
	token, err := ExtractToken(authHeader)
	if err != nil {
		return err
	}
	return v.ValidateToken(token)
}

// ExtractToken extracts the token from an Authorization header
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	// Support "Bearer {token}" format
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", errors.New("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("authorization header must use Bearer scheme")
	}

	return parts[1], nil
}
