// Package auth implements the token-verifier collaborator the gateway
// consumes before accepting a duplex connection.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a verified token resolves to.
type Identity struct {
	UserID   string
	Username string
}

// TokenVerifier resolves a bearer token to an Identity. Any returned error
// is treated as an authentication failure by the gateway.
type TokenVerifier interface {
	VerifyToken(token string) (Identity, error)
}

// Claims are the registered claims carried by access tokens this gateway
// verifies, plus the username the HTTP layer needs.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// JWTVerifier verifies HMAC-signed (HS256 by default) access tokens against
// a shared secret.
type JWTVerifier struct {
	secret    []byte
	algorithm string
}

// NewJWTVerifier builds a verifier for the given secret and signing
// algorithm name ("HS256" by default).
func NewJWTVerifier(secret string, algorithm string) *JWTVerifier {
	if algorithm == "" {
		algorithm = "HS256"
	}
	return &JWTVerifier{secret: []byte(secret), algorithm: algorithm}
}

// VerifyToken parses and validates token, returning the identity it
// encodes.
func (v *JWTVerifier) VerifyToken(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != v.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}

	return Identity{UserID: claims.Subject, Username: claims.Username}, nil
}

// IssueToken signs a short-lived access token for userID/username. It is
// used by local development and tests, not by the gateway itself.
func (v *JWTVerifier) IssueToken(userID, username string, lifetime time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
