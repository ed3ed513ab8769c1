// Package auth validates the bearer tokens presented by clients connecting
// to a presence node. Token issuance is an external collaborator (the
// authentication server named in the specification's scope); this package
// only ever verifies tokens signed elsewhere with a shared secret.
//
// SECURITY: the signing method is always checked against HMAC before the
// secret key is used to verify the signature. This prevents the classic
// "alg: none" and algorithm-substitution attacks where a token claims a
// different (or no) signing method to bypass verification.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the custom JWT claims a presence node expects. UserID is the
// only field the presence and routing paths rely on; everything else rides
// along for forward compatibility with richer tokens the auth server may
// issue.
type Claims struct {
	UserID string `json:"user_id"`

	jwt.RegisteredClaims
}

// Config holds token validation configuration.
type Config struct {
	// SecretKey is the HMAC signing key shared with the token-issuing
	// authentication server. Loaded from JWT_SECRET.
	SecretKey string

	// Issuer, if set, is checked against the token's iss claim.
	Issuer string
}

// Validator verifies bearer tokens and extracts the carried user id.
type Validator struct {
	cfg Config
}

// NewValidator creates a Validator bound to cfg.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// ErrNoToken is returned when no bearer token was present at all.
var ErrNoToken = errors.New("no token provided")

// ValidateToken parses and verifies tokenString, returning the claims it
// carries. Expiration, not-before, and signature are all checked by the
// underlying jwt library; this method additionally rejects any signing
// method other than HMAC.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid token: missing user_id claim")
	}
	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return nil, errors.New("invalid token: unexpected issuer")
	}

	return claims, nil
}

// ExtractToken pulls the bearer token out of an incoming connection request
// following the precedence order the wire protocol specifies: the
// Authorization header, then the "token" query parameter, then the "token"
// cookie.
func ExtractToken(authHeader, queryToken, cookieToken string) string {
	const prefix = "Bearer "
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return authHeader[len(prefix):]
	}
	if queryToken != "" {
		return queryToken
	}
	return cookieToken
}
