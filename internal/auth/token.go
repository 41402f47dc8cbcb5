// Package auth issues and verifies the HS256 bearer tokens that identify users.
// Accounts live in a separate service; this package only checks signatures.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrInvalidToken   = errors.New("invalid or expired token")
)

// Claims identify the caller.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token for userID that expires after ttl.
func Issue(secret, userID, username string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrSecretRequired
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse verifies tokenStr and returns its claims. Every failure matches ErrInvalidToken.
func Parse(secret, tokenStr string) (*Claims, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
