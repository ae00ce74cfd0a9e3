// Package token inspects access tokens on the client side. Parsing here is
// deliberately unverified: the server is the only authority on token
// validity, and the client reads claims purely for display and expiry hints.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiry = errors.New("token has no expiry claim")

// Claims are the portal-relevant fields of an access token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	TenantID  string
	ExpiresAt time.Time
}

// Parse decodes the claims of an access token without verifying its
// signature.
func Parse(accessToken string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, mapClaims); err != nil {
		return nil, fmt.Errorf("token.Parse: %w", err)
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if tenant, ok := mapClaims["tenant_id"].(string); ok {
		claims.TenantID = tenant
	}
	return claims, nil
}

// Expiry returns the exp claim of an access token.
func Expiry(accessToken string) (time.Time, error) {
	claims, err := Parse(accessToken)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt, nil
}

// ExpiresWithin reports whether the token expires inside the given window.
// Tokens without an exp claim or that fail to parse report true, so callers
// err on the side of treating them as due for renewal.
func ExpiresWithin(accessToken string, window time.Duration) bool {
	exp, err := Expiry(accessToken)
	if err != nil {
		return true
	}
	return time.Now().Add(window).After(exp)
}
