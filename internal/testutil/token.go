// Package testutil signs tokens accepted by the server in AUTH0_TEST_MODE.
package testutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is the lifetime of generated tokens.
const DefaultTTL = time.Hour

// TestToken returns an HS256 JWT for userID signed with secret.
func TestToken(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
