// Package token validates the HS256 bearer tokens issued to presentation
// collaborators. pmohub never mints tokens for third parties; it only checks
// that incoming ones were signed with the shared key.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims pmohub cares about on inbound tokens.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Validator parses and verifies HS256 tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// Validate returns the subject of a valid token or an error.
func (v *Validator) Validate(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}
